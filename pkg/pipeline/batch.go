package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/orpheus-ai/orpheus/pkg/abc"
)

// BatchOptions controls a batch run. Each item is written under
// OutputBase/<name>.
type BatchOptions struct {
	OutputBase    string
	Enhance       bool
	SessionBudget float64
	KeepAlive     time.Duration
	CustomPrompt  string
	// LeaveRunning skips the pause at the end of the batch.
	LeaveRunning bool
}

// BatchItem is the outcome of one batch entry.
type BatchItem struct {
	Name   string        `json:"name"`
	Source string        `json:"source,omitempty"`
	Result ProcessResult `json:"result"`
	Error  string        `json:"error,omitempty"`
}

// Failed reports whether the item produced nothing usable.
func (i BatchItem) Failed() bool {
	return i.Error != "" || i.Result.Failed()
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	RunID      string        `json:"run_id"`
	Items      []BatchItem   `json:"items"`
	Processed  int           `json:"processed"`
	Enhanced   int           `json:"enhanced"`
	Declined   int           `json:"declined"`
	Failed     int           `json:"failed"`
	TotalSpend float64       `json:"total_spend"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Batch processes items sequentially under the shared ledger and endpoint
// so one boot can serve many items. A fatal enhancer error or a cancelled
// context stops the run; the summary covers the items completed so far.
func (p *Pipeline) Batch(ctx context.Context, items []Item, opts BatchOptions) (summary BatchSummary, err error) {
	summary.RunID = uuid.NewString()
	started := p.now()
	logger := p.logger.With("run_id", summary.RunID)
	logger.Info("batch started", "items", len(items))

	p.applyOverrides(opts.SessionBudget, opts.KeepAlive)
	defer func() {
		summary.Elapsed = p.now().Sub(started)
	}()
	if opts.Enhance && !opts.LeaveRunning && p.endpoint != nil {
		defer p.pauseEndpoint(ctx)
	}

	base := opts.OutputBase
	if base == "" {
		base = "output"
	}
	seen := make(map[string]bool)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("batch interrupted: %w", err)
		}
		if item.Name == "" {
			item.Name = abc.CreationName(item.SourceFile, item.Content, p.now())
		}
		item.Name = uniqueName(item.Name, seen)
		seen[item.Name] = true

		entry := BatchItem{Name: item.Name, Source: item.SourceFile}
		if err := abc.RequireContent(item.Content); err != nil {
			entry.Error = err.Error()
			summary.add(entry)
			continue
		}

		res, err := p.process(ctx, item, Options{
			OutputDir:    filepath.Join(base, item.Name),
			Enhance:      opts.Enhance,
			CustomPrompt: opts.CustomPrompt,
		})
		entry.Result = res
		if err != nil {
			entry.Error = err.Error()
			summary.add(entry)
			logger.Error("batch aborted", "item", item.Name, "error", err)
			return summary, err
		}
		summary.add(entry)
	}

	logger.Info("batch finished",
		"processed", summary.Processed,
		"enhanced", summary.Enhanced,
		"declined", summary.Declined,
		"failed", summary.Failed,
		"total_spend", summary.TotalSpend,
	)
	return summary, nil
}

// uniqueName returns base, or base_2, base_3 ... whichever is not yet taken.
func uniqueName(base string, taken map[string]bool) string {
	name := base
	for n := 2; taken[name]; n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	return name
}

func (s *BatchSummary) add(item BatchItem) {
	s.Items = append(s.Items, item)
	s.Processed++
	if item.Failed() {
		s.Failed++
	}
	if e := item.Result.Enhancement; e != nil {
		if e.Enhanced {
			s.Enhanced++
		} else {
			s.Declined++
		}
	}
	s.TotalSpend += item.Result.Spend()
}

func (p *Pipeline) pauseEndpoint(ctx context.Context) {
	pauseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.endpoint.Shutdown(pauseCtx); err != nil {
		p.logger.Warn("failed to pause endpoint after batch", "error", err)
	}
}
