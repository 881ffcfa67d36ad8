package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/orpheus-ai/orpheus/pkg/pipeline"
)

const (
	defaultBatchBudget    = 5.00
	defaultBatchKeepAlive = 600 * time.Second
)

func newBatchCmd(g *globalFlags) *cobra.Command {
	var (
		outputBase   string
		noEnhance    bool
		hfBudget     float64
		keepAlive    time.Duration
		hfPrompt     string
		leaveRunning bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "batch FILES...",
		Short: "Process several ABC files under one budget and one endpoint boot",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadWithLogger(cmd, g)
			if err != nil {
				return err
			}

			items, err := readBatchItems(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			a, err := openApp(cfg, logger, appOptions{enhance: !noEnhance})
			if err != nil {
				return err
			}
			defer a.Close()

			base := outputBase
			if base == "" {
				base = cfg.OutputDir
			}
			summary, runErr := a.pipeline.Batch(ctx, items, pipeline.BatchOptions{
				OutputBase:    base,
				Enhance:       !noEnhance,
				SessionBudget: hfBudget,
				KeepAlive:     keepAlive,
				CustomPrompt:  hfPrompt,
				LeaveRunning:  leaveRunning,
			})

			if err := printBatch(cmd.OutOrStdout(), summary, g.jsonOutput); err != nil {
				return errors.Join(runErr, err)
			}
			if runErr != nil {
				return runErr
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d items failed", summary.Failed, summary.Processed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outputBase, "output-base", "", "base directory; each file gets its own subdirectory (default from config)")
	cmd.Flags().BoolVar(&noEnhance, "no-enhance", false, "only render the originals")
	cmd.Flags().Float64Var(&hfBudget, "hf-budget", defaultBatchBudget, "session budget in dollars for the whole batch")
	cmd.Flags().DurationVar(&keepAlive, "keep-alive", defaultBatchKeepAlive, "keep the endpoint running between items")
	cmd.Flags().StringVar(&hfPrompt, "hf-prompt", "", "additional requirements for every enhancement")
	cmd.Flags().BoolVar(&leaveRunning, "leave-running", false, "do not pause the endpoint when the batch ends")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall time limit for the batch (0 = none)")
	return cmd
}

func readBatchItems(files []string) ([]pipeline.Item, error) {
	items := make([]pipeline.Item, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		items = append(items, pipeline.Item{Content: string(data), SourceFile: f})
	}
	return items, nil
}

func printBatch(w io.Writer, s pipeline.BatchSummary, asJSON bool) error {
	if asJSON {
		return writeJSON(w, s)
	}

	rows := make([][]string, 0, len(s.Items))
	for _, item := range s.Items {
		rows = append(rows, []string{
			item.Name,
			originalCell(item),
			enhancementCell(item.Result),
			formatCost(item.Result.Spend()),
		})
	}
	printTable(w, []string{"NAME", "ORIGINAL", "ENHANCEMENT", "COST"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})

	fmt.Fprintf(w, "Run %s: %d processed, %d enhanced, %d declined, %d failed, %s spent in %s\n",
		s.RunID, s.Processed, s.Enhanced, s.Declined, s.Failed, formatCost(s.TotalSpend), s.Elapsed.Round(time.Second))
	return nil
}

func originalCell(item pipeline.BatchItem) string {
	switch {
	case item.Error != "" && item.Result.Name == "":
		return "error: " + item.Error
	case item.Result.Original != nil:
		return "ok"
	default:
		return "failed"
	}
}

func enhancementCell(res pipeline.ProcessResult) string {
	e := res.Enhancement
	switch {
	case !res.EnhanceRequested:
		return "-"
	case e == nil:
		return "no result"
	case !e.Enhanced:
		return "declined: " + e.ReasonText()
	case res.Enhanced == nil:
		return "render failed"
	case e.Cached:
		return "cached"
	default:
		return fmt.Sprintf("ok (%.1fs)", e.ProcessingTime.Seconds())
	}
}
