package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/orpheus-ai/orpheus/pkg/abc"
	"github.com/orpheus-ai/orpheus/pkg/config"
	"github.com/orpheus-ai/orpheus/pkg/models"
	"github.com/orpheus-ai/orpheus/pkg/pipeline"
)

var version = "dev"

var errNothingRendered = errors.New("original rendering failed and no enhanced version was produced")

// globalFlags are shared by the root command and every subcommand.
type globalFlags struct {
	configPath string
	quiet      bool
	jsonOutput bool
}

type runFlags struct {
	abcFile      string
	abcContent   string
	outputDir    string
	name         string
	noEnhance    bool
	hfBudget     float64
	dailyBudget  float64
	keepAlive    time.Duration
	hfPrompt     string
	budgetStatus bool
	resetBudget  bool
	configCheck  bool
	timeout      time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	f := &runFlags{}

	root := &cobra.Command{
		Use:   "oenhance",
		Short: "Render ABC notation and enhance it with a pay-per-use remote model",
		Long: `oenhance renders a piece of ABC notation as supplied and, unless
--no-enhance is given, asks a remote model for an enhanced arrangement under
a session and daily budget. Both versions are written next to a markdown
report comparing them.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnhance(cmd, g, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", config.DefaultPath, "path to config file")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "only log errors")
	pf.BoolVar(&g.jsonOutput, "json-output", false, "print results as JSON")

	fl := root.Flags()
	fl.StringVar(&f.abcFile, "abc-file", "", "read notation from this file")
	fl.StringVar(&f.abcContent, "abc-content", "", "notation given inline")
	fl.StringVarP(&f.outputDir, "output-dir", "o", "", "output directory (default from config)")
	fl.StringVar(&f.name, "name", "", "creation name (default from file name or title)")
	fl.BoolVar(&f.noEnhance, "no-enhance", false, "only render the original")
	fl.Float64Var(&f.hfBudget, "hf-budget", 0, "session budget in dollars for this run (0 keeps the configured limit)")
	fl.Float64Var(&f.dailyBudget, "daily-budget", 0, "set and persist the daily budget in dollars (0 = unlimited)")
	fl.DurationVar(&f.keepAlive, "keep-alive", 0, "keep the endpoint running this long after use")
	fl.StringVar(&f.hfPrompt, "hf-prompt", "", "additional requirements for the enhancement")
	fl.BoolVar(&f.budgetStatus, "budget-status", false, "show budget status and exit")
	fl.BoolVar(&f.resetBudget, "reset-budget", false, "reset daily and session spend and exit")
	fl.BoolVar(&f.configCheck, "config-check", false, "check the configuration and exit")
	fl.DurationVar(&f.timeout, "timeout", 0, "overall time limit for the run (0 = none)")
	root.MarkFlagsMutuallyExclusive("abc-file", "abc-content")

	root.AddCommand(
		newBatchCmd(g),
		newBudgetCmd(g),
		newHistoryCmd(g),
		newCacheCmd(g),
		newConfigCmd(g),
	)
	return root
}

// runReport is the --json-output document for a single run.
type runReport struct {
	Result   pipeline.ProcessResult `json:"result"`
	Budget   *models.BudgetStatus   `json:"budget,omitempty"`
	Endpoint *models.EndpointState  `json:"endpoint,omitempty"`
}

func runEnhance(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, g.quiet, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var daily *float64
	if cmd.Flags().Changed("daily-budget") {
		daily = &f.dailyBudget
	}

	switch {
	case f.configCheck:
		return runConfigCheck(out, cfg, g.jsonOutput)
	case f.budgetStatus:
		return runBudgetStatus(out, cfg, logger, daily, g.jsonOutput)
	case f.resetBudget:
		return runBudgetReset(out, cfg, logger, g.jsonOutput)
	}

	content, source, err := readContent(cmd.InOrStdin(), f.abcFile, f.abcContent)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	a, err := openApp(cfg, logger, appOptions{enhance: !f.noEnhance, dailyBudget: daily})
	if err != nil {
		return err
	}
	defer a.Close()

	outDir := f.outputDir
	if outDir == "" {
		outDir = cfg.OutputDir
	}
	res, err := a.pipeline.Process(ctx, pipeline.Item{Content: content, Name: f.name, SourceFile: source}, pipeline.Options{
		OutputDir:     outDir,
		Enhance:       !f.noEnhance,
		SessionBudget: f.hfBudget,
		KeepAlive:     f.keepAlive,
		CustomPrompt:  f.hfPrompt,
	})
	if errors.Is(err, abc.ErrNoContent) {
		return err
	}

	report := runReport{Result: res}
	if a.ledger != nil {
		st := a.ledger.Status()
		report.Budget = &st
	}
	if a.endpoint != nil {
		st := a.endpoint.State()
		report.Endpoint = &st
	}
	if perr := printRun(out, report, g.jsonOutput); perr != nil {
		return errors.Join(err, perr)
	}

	if err != nil {
		return err
	}
	if res.Failed() {
		return errNothingRendered
	}
	return nil
}

// readContent resolves the notation from --abc-file, --abc-content or piped
// stdin, in that order. An interactive stdin is never read.
func readContent(stdin io.Reader, file, inline string) (content, source string, err error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", "", fmt.Errorf("read abc file: %w", err)
		}
		return string(data), file, nil
	case inline != "":
		return inline, "", nil
	}

	if stdin == nil || isTerminal(stdin) {
		return "", "", abc.ErrNoContent
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", "", abc.ErrNoContent
	}
	return string(data), "", nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printRun(w io.Writer, report runReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, report)
	}

	res := report.Result
	fmt.Fprintf(w, "Creation: %s\n", res.Name)
	if res.Original != nil {
		fmt.Fprintf(w, "Original: %s\n", res.Original.ContentFile)
	} else {
		fmt.Fprintf(w, "Original: rendering failed (%s)\n", res.OriginalError)
	}

	switch e := res.Enhancement; {
	case !res.EnhanceRequested:
	case e == nil:
		fmt.Fprintln(w, "Enhanced: no result")
	case !e.Enhanced:
		fmt.Fprintf(w, "Enhanced: declined (%s)\n", e.ReasonText())
	case res.Enhanced != nil:
		fmt.Fprintf(w, "Enhanced: %s (%.1fs, %s)\n", res.Enhanced.ContentFile, e.ProcessingTime.Seconds(), formatCost(e.ActualCost))
	default:
		fmt.Fprintf(w, "Enhanced: rendering failed (%s)\n", res.EnhancedError)
	}

	if res.ReportFile != "" {
		fmt.Fprintf(w, "Report:   %s\n", res.ReportFile)
	}
	if b := report.Budget; b != nil {
		fmt.Fprintf(w, "Spend:    session %s, today %s\n", formatCost(b.State.SessionSpent), formatCost(b.State.DailySpent))
	}
	return nil
}
