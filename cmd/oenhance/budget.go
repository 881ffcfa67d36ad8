package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/orpheus-ai/orpheus/pkg/config"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

func newBudgetCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show or reset enhancement spend",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show spend against the session and daily limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadWithLogger(cmd, g)
			if err != nil {
				return err
			}
			return runBudgetStatus(cmd.OutOrStdout(), cfg, logger, nil, g.jsonOutput)
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset daily and session spend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadWithLogger(cmd, g)
			if err != nil {
				return err
			}
			return runBudgetReset(cmd.OutOrStdout(), cfg, logger, g.jsonOutput)
		},
	}

	cmd.AddCommand(statusCmd, resetCmd)
	return cmd
}

func loadWithLogger(cmd *cobra.Command, g *globalFlags) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, g.quiet, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runBudgetStatus(w io.Writer, cfg *config.Config, logger *slog.Logger, daily *float64, asJSON bool) error {
	ledger, err := openLedger(cfg, logger, daily)
	if err != nil {
		return err
	}
	status := ledger.Status()
	if asJSON {
		return writeJSON(w, status)
	}
	printBudget(w, status)
	return nil
}

func runBudgetReset(w io.Writer, cfg *config.Config, logger *slog.Logger, asJSON bool) error {
	ledger, err := openLedger(cfg, logger, nil)
	if err != nil {
		return err
	}
	if err := ledger.ResetDaily(); err != nil {
		return fmt.Errorf("reset budget: %w", err)
	}
	ledger.ResetSession()
	status := ledger.Status()
	if asJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintln(w, "Budget reset.")
	printBudget(w, status)
	return nil
}

func printBudget(w io.Writer, status models.BudgetStatus) {
	st := status.State
	rows := [][]string{
		{"session", formatLimit(st.SessionLimit), formatCost(st.SessionSpent), formatRemaining(status.SessionRemaining)},
		{"daily", formatLimit(st.DailyLimit), formatCost(st.DailySpent), formatRemaining(status.DailyRemaining)},
	}
	printTable(w, []string{"TIER", "LIMIT", "SPENT", "REMAINING"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight})

	persisted := "not yet written"
	if status.FileExists {
		persisted = "present"
	}
	fmt.Fprintf(w, "Date:   %s\nLedger: %s (%s)\n", st.LastResetDate, status.File, persisted)
}
