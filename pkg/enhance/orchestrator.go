// Package enhance runs one enhancement attempt: budget check, endpoint
// start, inference, extraction, cost accounting and the keep-alive decision.
package enhance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orpheus-ai/orpheus/pkg/cache/sqlite"
	"github.com/orpheus-ai/orpheus/pkg/logging"
	"github.com/orpheus-ai/orpheus/pkg/models"
)

const shutdownTimeout = 30 * time.Second

// Ledger is the spend tracker consulted before and charged after an attempt.
type Ledger interface {
	CanSpend(estimate float64) bool
	RecordSpend(actual float64) error
}

// Endpoint is the lifecycle of the remote model.
type Endpoint interface {
	EnsureRunning(ctx context.Context) error
	Infer(ctx context.Context, prompt string) (string, error)
	Touch()
	ShouldShutdown() bool
	Shutdown(ctx context.Context) error
}

// Extractor pulls notation out of generated text.
type Extractor interface {
	ExtractContent(raw string) (string, bool)
}

// Recorder stores attempt history.
type Recorder interface {
	Record(ctx context.Context, rec models.AttemptRecord) error
}

// Cache stores enhanced content by prompt hash.
type Cache interface {
	Get(ctx context.Context, promptHash, endpoint string) (string, bool)
	Put(ctx context.Context, promptHash, endpoint, content string) error
}

// Orchestrator performs enhancement attempts against one ledger and one
// endpoint.
type Orchestrator struct {
	ledger       Ledger
	endpoint     Endpoint
	extractor    Extractor
	recorder     Recorder
	cache        Cache
	endpointName string
	template     string
	now          func() time.Time
	logger       *slog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder records every attempt.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithCache serves repeated prompts from c.
func WithCache(c Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithEndpointName labels history and cache entries.
func WithEndpointName(name string) Option {
	return func(o *Orchestrator) { o.endpointName = name }
}

// WithPromptTemplate overrides DefaultPromptTemplate.
func WithPromptTemplate(tmpl string) Option {
	return func(o *Orchestrator) {
		if strings.TrimSpace(tmpl) != "" {
			o.template = tmpl
		}
	}
}

// WithClock overrides the clock used for timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.OrDiscard(logger) }
}

// New constructs an Orchestrator.
func New(ledger Ledger, endpoint Endpoint, extractor Extractor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:    ledger,
		endpoint:  endpoint,
		extractor: extractor,
		template:  DefaultPromptTemplate,
		now:       time.Now,
		logger:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enhance runs one attempt. Declines are returned as data; the error is
// reserved for failures to persist spend, after which the ledger can no
// longer be trusted.
func (o *Orchestrator) Enhance(ctx context.Context, req models.EnhancementRequest) (result models.EnhancementResult, err error) {
	logger := o.logger.With("creation", req.CreationName)
	rec := models.AttemptRecord{
		ID:            uuid.NewString(),
		CreationName:  req.CreationName,
		Endpoint:      o.endpointName,
		EstimatedCost: req.EstimatedCost,
		CreatedAt:     o.now(),
	}
	defer func() {
		o.record(ctx, logger, rec, result)
	}()

	if strings.TrimSpace(req.Content) == "" {
		return models.Declined(models.DeclineExtractionFailed, "no content to enhance"), nil
	}

	prompt := RenderPrompt(o.template, req.Content, req.CustomPrompt)
	var cacheKey string
	if o.cache != nil {
		cacheKey = sqlite.HashPrompt(o.endpointName, prompt)
		if content, ok := o.cache.Get(ctx, cacheKey, o.endpointName); ok {
			logger.Info("enhancement served from cache")
			res := models.Enhanced(content, 0, 0)
			res.Cached = true
			return res, nil
		}
	}

	if !o.ledger.CanSpend(req.EstimatedCost) {
		logger.Info("enhancement declined", "reason", models.DeclineBudgetExceeded, "estimate", req.EstimatedCost)
		return models.Declined(models.DeclineBudgetExceeded, ""), nil
	}

	defer o.settleEndpoint(ctx, logger)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("enhancement panicked", "panic", p)
			result, err = models.Declined(models.DeclineRemoteError, fmt.Sprint(p)), nil
		}
	}()

	bootStart := o.now()
	if err := o.endpoint.EnsureRunning(ctx); err != nil {
		logger.Warn("endpoint unavailable", "error", err)
		return models.Declined(models.DeclineRemoteError, err.Error()), nil
	}
	rec.BootMs = o.now().Sub(bootStart).Milliseconds()

	started := o.now()
	raw, err := o.endpoint.Infer(ctx, prompt)
	if err != nil {
		logger.Warn("inference failed", "error", err)
		return models.Declined(models.DeclineRemoteError, err.Error()), nil
	}
	if strings.TrimSpace(raw) == "" {
		return models.Declined(models.DeclineNoOutput, ""), nil
	}

	content, ok := o.extractor.ExtractContent(raw)
	if !ok {
		return models.Declined(models.DeclineExtractionFailed, ""), nil
	}
	elapsed := o.now().Sub(started)

	cost := ActualCost(req.EstimatedCost, elapsed)
	if err := o.ledger.RecordSpend(cost); err != nil {
		logger.Error("failed to persist spend", "cost", cost, "error", err)
		return models.Declined(models.DeclineRemoteError, "spend not recorded"), fmt.Errorf("record spend: %w", err)
	}
	o.endpoint.Touch()

	if o.cache != nil {
		if err := o.cache.Put(ctx, cacheKey, o.endpointName, content); err != nil {
			logger.Warn("failed to cache enhancement", "error", err)
		}
	}

	logger.Info("enhancement complete",
		"seconds", elapsed.Seconds(),
		"cost", cost,
	)
	return models.Enhanced(content, elapsed, cost), nil
}

// settleEndpoint pauses the endpoint unless a keep-alive window is open.
// A panic from the endpoint is logged and leaves the result untouched.
func (o *Orchestrator) settleEndpoint(ctx context.Context, logger *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("settling endpoint panicked", "panic", p)
		}
	}()
	if !o.endpoint.ShouldShutdown() {
		logger.Debug("keeping endpoint warm")
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := o.endpoint.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to pause endpoint", "error", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, rec models.AttemptRecord, res models.EnhancementResult) {
	if o.recorder == nil {
		return
	}
	switch {
	case res.Cached:
		rec.Outcome = models.OutcomeCached
	case res.Enhanced:
		rec.Outcome = models.OutcomeEnhanced
	default:
		rec.Outcome = models.OutcomeDeclined
		rec.Reason = res.ReasonText()
	}
	rec.ActualCost = res.ActualCost
	rec.ProcessingMs = res.ProcessingTime.Milliseconds()
	if err := o.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("failed to record attempt", "error", err)
	}
}
