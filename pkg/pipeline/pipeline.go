// Package pipeline renders a creation twice, as supplied and as enhanced by
// the remote model, and writes a report comparing the two.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/orpheus-ai/orpheus/pkg/abc"
	"github.com/orpheus-ai/orpheus/pkg/logging"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

const (
	originalDir = "original"
	enhancedDir = "enhanced"
	reportName  = "generation_report.md"
)

// Renderer turns notation into an output bundle under dir.
type Renderer interface {
	Render(ctx context.Context, content, dir, baseName string) (models.OutputBundle, error)
}

// Enhancer runs one enhancement attempt.
type Enhancer interface {
	Enhance(ctx context.Context, req models.EnhancementRequest) (models.EnhancementResult, error)
}

// Budget receives per-run session limit overrides.
type Budget interface {
	SetSessionLimit(limit float64)
}

// Endpoint receives keep-alive overrides and the end-of-batch pause.
type Endpoint interface {
	SetKeepAlive(d time.Duration)
	Shutdown(ctx context.Context) error
}

// Item is one creation to process.
type Item struct {
	Content    string
	Name       string
	SourceFile string
}

// Options controls a single Process call. Zero SessionBudget and KeepAlive
// leave the current settings untouched.
type Options struct {
	OutputDir     string
	Enhance       bool
	SessionBudget float64
	KeepAlive     time.Duration
	CustomPrompt  string
}

// ProcessResult is the outcome of one creation. Bundles that were not
// produced are nil and carry an error marker instead.
type ProcessResult struct {
	Name             string                    `json:"name"`
	OutputDir        string                    `json:"output_dir"`
	Original         *models.OutputBundle      `json:"original,omitempty"`
	OriginalError    string                    `json:"original_error,omitempty"`
	EnhanceRequested bool                      `json:"enhance_requested"`
	Enhancement      *models.EnhancementResult `json:"enhancement,omitempty"`
	Enhanced         *models.OutputBundle      `json:"enhanced,omitempty"`
	EnhancedError    string                    `json:"enhanced_error,omitempty"`
	ReportFile       string                    `json:"report_file,omitempty"`
}

// Failed reports whether the run produced nothing usable: the original
// failed to render and there is no enhanced bundle to fall back on.
func (r ProcessResult) Failed() bool {
	return r.OriginalError != "" && r.Enhanced == nil
}

// Spend returns the cost charged for the enhancement, if any.
func (r ProcessResult) Spend() float64 {
	if r.Enhancement == nil {
		return 0
	}
	return r.Enhancement.ActualCost
}

// Pipeline wires a renderer and an enhancer.
type Pipeline struct {
	renderer      Renderer
	enhancer      Enhancer
	budget        Budget
	endpoint      Endpoint
	estimatedCost float64
	now           func() time.Time
	logger        *slog.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithEnhancer enables the enhanced path.
func WithEnhancer(e Enhancer) Option {
	return func(p *Pipeline) { p.enhancer = e }
}

// WithBudget lets Options.SessionBudget reach the ledger.
func WithBudget(b Budget) Option {
	return func(p *Pipeline) { p.budget = b }
}

// WithEndpoint lets Options.KeepAlive reach the endpoint lifecycle.
func WithEndpoint(e Endpoint) Option {
	return func(p *Pipeline) { p.endpoint = e }
}

// WithEstimatedCost sets the estimate sent with each enhancement request.
func WithEstimatedCost(cost float64) Option {
	return func(p *Pipeline) { p.estimatedCost = cost }
}

// WithClock overrides the clock used for default names and timings.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrDiscard(logger) }
}

// New constructs a Pipeline.
func New(renderer Renderer, opts ...Option) *Pipeline {
	p := &Pipeline{
		renderer:      renderer,
		estimatedCost: 0.10,
		now:           time.Now,
		logger:        logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process renders item into opts.OutputDir. Rendering and enhancement
// failures are recorded in the result; the error is returned only for
// missing content, an unwritable report, or a fatal enhancer error.
func (p *Pipeline) Process(ctx context.Context, item Item, opts Options) (ProcessResult, error) {
	if err := abc.RequireContent(item.Content); err != nil {
		return ProcessResult{}, err
	}
	p.applyOverrides(opts.SessionBudget, opts.KeepAlive)
	return p.process(ctx, item, opts)
}

func (p *Pipeline) applyOverrides(sessionBudget float64, keepAlive time.Duration) {
	if sessionBudget > 0 && p.budget != nil {
		p.budget.SetSessionLimit(sessionBudget)
	}
	if keepAlive > 0 && p.endpoint != nil {
		p.endpoint.SetKeepAlive(keepAlive)
	}
}

func (p *Pipeline) process(ctx context.Context, item Item, opts Options) (ProcessResult, error) {
	name := item.Name
	if name == "" {
		name = abc.CreationName(item.SourceFile, item.Content, p.now())
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "output"
	}
	logger := p.logger.With("creation", name)
	res := ProcessResult{Name: name, OutputDir: outDir}

	original, err := p.renderer.Render(ctx, item.Content, filepath.Join(outDir, originalDir), name)
	if err != nil {
		logger.Warn("original rendering failed", "error", err)
		res.OriginalError = err.Error()
	} else {
		res.Original = &original
		logger.Info("original rendered", "abc_file", original.ContentFile)
	}

	var fatal error
	if opts.Enhance {
		res.EnhanceRequested = true
		fatal = p.enhance(ctx, logger, item, name, outDir, opts.CustomPrompt, &res)
	}

	report, err := p.writeReport(res)
	if err != nil {
		return res, errors.Join(fatal, err)
	}
	res.ReportFile = report
	return res, fatal
}

func (p *Pipeline) enhance(ctx context.Context, logger *slog.Logger, item Item, name, outDir, custom string, res *ProcessResult) error {
	if p.enhancer == nil {
		r := models.Declined(models.DeclineRemoteError, "enhancement not configured")
		res.Enhancement = &r
		return nil
	}
	result, err := p.enhancer.Enhance(ctx, models.EnhancementRequest{
		Content:       item.Content,
		CreationName:  name,
		CustomPrompt:  custom,
		EstimatedCost: p.estimatedCost,
	})
	res.Enhancement = &result
	if err != nil {
		return fmt.Errorf("enhance %s: %w", name, err)
	}
	if !result.Enhanced {
		logger.Info("enhancement declined", "reason", result.ReasonText())
		return nil
	}

	bundle, err := p.renderer.Render(ctx, result.Content, filepath.Join(outDir, enhancedDir), name+"_enhanced")
	if err != nil {
		logger.Warn("enhanced rendering failed", "error", err)
		res.EnhancedError = err.Error()
		return nil
	}
	res.Enhanced = &bundle
	logger.Info("enhanced version rendered",
		"abc_file", bundle.ContentFile,
		"seconds", result.ProcessingTime.Seconds(),
		"cost", result.ActualCost,
	)
	return nil
}

func (p *Pipeline) writeReport(res ProcessResult) (string, error) {
	if err := os.MkdirAll(res.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(res.OutputDir, reportName)
	if err := os.WriteFile(path, []byte(FormatReport(res, p.now())), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
