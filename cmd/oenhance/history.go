package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/orpheus-ai/orpheus/pkg/models"
	"github.com/orpheus-ai/orpheus/pkg/tracker"
)

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded enhancement attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := cmd.Context()
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			attempts, err := tr.List(ctx, from, limit)
			if err != nil {
				return err
			}
			summary, err := tr.Summary(ctx, from)
			if err != nil {
				return err
			}
			total, err := tr.TotalCost(ctx, from)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if g.jsonOutput {
				return writeJSON(w, struct {
					Attempts  []models.AttemptRecord  `json:"attempts"`
					Summary   []models.AttemptSummary `json:"summary"`
					TotalCost float64                 `json:"total_cost"`
				}{attempts, summary, total})
			}

			if len(attempts) == 0 {
				fmt.Fprintln(w, "No enhancement attempts recorded.")
				return nil
			}

			rows := make([][]string, 0, len(attempts))
			for _, a := range attempts {
				rows = append(rows, []string{
					a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					a.CreationName,
					string(a.Outcome),
					a.Reason,
					formatCost(a.ActualCost),
					formatMillis(a.ProcessingMs),
					formatMillis(a.BootMs),
				})
			}
			printTable(w, []string{"TIME", "CREATION", "OUTCOME", "REASON", "COST", "PROCESSING", "BOOT"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight})

			srows := make([][]string, 0, len(summary))
			for _, s := range summary {
				srows = append(srows, []string{
					string(s.Outcome),
					strconv.Itoa(s.Count),
					formatCost(s.TotalCost),
					formatMillis(s.AvgProcessMs),
				})
			}
			printTable(w, []string{"OUTCOME", "ATTEMPTS", "COST", "AVG PROCESSING"}, srows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight})

			fmt.Fprintf(w, "Total spend: %s\n", formatCost(total))
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only show attempts newer than this (e.g. 24h, 0 = all)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of attempts to list")
	return cmd
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}
