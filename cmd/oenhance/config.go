package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orpheus-ai/orpheus/pkg/config"
)

var errConfigIncomplete = errors.New("configuration incomplete")

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and report what the endpoint still needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			return runConfigCheck(cmd.OutOrStdout(), cfg, g.jsonOutput)
		},
	}

	cmd.AddCommand(checkCmd)
	return cmd
}

type configCheck struct {
	Endpoint    string   `json:"endpoint"`
	APIURL      string   `json:"api_url"`
	TokenEnvVar string   `json:"token_env_var"`
	Token       string   `json:"token"`
	BudgetFile  string   `json:"budget_file"`
	DBPath      string   `json:"db_path"`
	OutputDir   string   `json:"output_dir"`
	Ready       bool     `json:"ready"`
	Problems    []string `json:"problems,omitempty"`
}

// runConfigCheck prints the effective settings with the token masked. It
// fails when the endpoint cannot be used; the endpoint is never contacted.
func runConfigCheck(w io.Writer, cfg *config.Config, asJSON bool) error {
	check := configCheck{
		APIURL:      cfg.Endpoint.APIURL,
		TokenEnvVar: cfg.Endpoint.TokenEnvVar,
		Token:       config.MaskToken(cfg.Endpoint.Token()),
		BudgetFile:  cfg.BudgetFile,
		DBPath:      cfg.DBPath,
		OutputDir:   cfg.OutputDir,
	}
	if cfg.Endpoint.Namespace != "" || cfg.Endpoint.Name != "" {
		check.Endpoint = cfg.Endpoint.Namespace + "/" + cfg.Endpoint.Name
	}
	err := cfg.CheckEndpoint()
	if err != nil {
		check.Problems = strings.Split(err.Error(), "\n")
	}
	check.Ready = err == nil

	if asJSON {
		if werr := writeJSON(w, check); werr != nil {
			return werr
		}
	} else {
		token := check.Token
		if token == "" {
			token = "(not set)"
		}
		rows := [][]string{
			{"endpoint", check.Endpoint},
			{"api url", check.APIURL},
			{"token", fmt.Sprintf("%s from $%s", token, check.TokenEnvVar)},
			{"budget file", check.BudgetFile},
			{"history db", check.DBPath},
			{"output dir", check.OutputDir},
		}
		printTable(w, []string{"SETTING", "VALUE"}, rows, nil)
		for _, p := range check.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		if check.Ready {
			fmt.Fprintln(w, "Configuration OK.")
		}
	}

	if err != nil {
		return fmt.Errorf("%w: %w", errConfigIncomplete, err)
	}
	return nil
}
