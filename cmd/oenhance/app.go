package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/orpheus-ai/orpheus/pkg/abc"
	"github.com/orpheus-ai/orpheus/pkg/budget"
	cachepkg "github.com/orpheus-ai/orpheus/pkg/cache/sqlite"
	"github.com/orpheus-ai/orpheus/pkg/config"
	"github.com/orpheus-ai/orpheus/pkg/endpoint"
	"github.com/orpheus-ai/orpheus/pkg/enhance"
	"github.com/orpheus-ai/orpheus/pkg/logging"
	"github.com/orpheus-ai/orpheus/pkg/pipeline"
	"github.com/orpheus-ai/orpheus/pkg/tracker"
)

// app holds the components shared by the pipeline commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	ledger   *budget.Ledger
	endpoint *endpoint.Lifecycle
	tracker  *tracker.SQLiteTracker
	cache    *cachepkg.Cache
	pipeline *pipeline.Pipeline
}

type appOptions struct {
	enhance     bool
	dailyBudget *float64
}

// loadConfig reads the config at path. A missing file at the default
// location yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, quiet bool, out io.Writer) (*slog.Logger, error) {
	level := cfg.Log.Level
	if quiet {
		level = "error"
	}
	return logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Output: out})
}

func openLedger(cfg *config.Config, logger *slog.Logger, dailyBudget *float64) (*budget.Ledger, error) {
	ledger, err := budget.Open(cfg.BudgetFile,
		budget.WithSessionLimit(cfg.Budget.SessionLimit),
		budget.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open budget: %w", err)
	}

	switch {
	case dailyBudget != nil:
		err = ledger.SetDailyLimit(*dailyBudget)
	case cfg.Budget.DailyLimit > 0 && ledger.State().DailyLimit == 0:
		err = ledger.SetDailyLimit(cfg.Budget.DailyLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("set daily budget: %w", err)
	}
	return ledger, nil
}

// openApp builds the pipeline. The remote endpoint is only wired when
// enhancement is requested and the endpoint settings are complete; otherwise
// enhancement requests are declined by the pipeline.
func openApp(cfg *config.Config, logger *slog.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	renderer := abc.NewRenderer(
		abc.WithScoreConverter(abc.Converter{Command: cfg.Render.ScoreCommand, Ext: cfg.Render.ScoreExt}),
		abc.WithAudioConverter(abc.Converter{Command: cfg.Render.AudioCommand, Ext: cfg.Render.AudioExt}),
		abc.WithRenderLogger(logger),
	)
	pipeOpts := []pipeline.Option{
		pipeline.WithEstimatedCost(cfg.Enhancement.EstimatedCost),
		pipeline.WithLogger(logger),
	}

	if opts.enhance {
		ledger, err := openLedger(cfg, logger, opts.dailyBudget)
		if err != nil {
			return nil, err
		}
		a.ledger = ledger
		pipeOpts = append(pipeOpts, pipeline.WithBudget(ledger))

		if err := cfg.CheckEndpoint(); err != nil {
			logger.Warn("remote endpoint not configured, enhancement will be declined", "error", err)
		} else {
			orch, err := a.wireEnhancer()
			if err != nil {
				a.Close()
				return nil, err
			}
			pipeOpts = append(pipeOpts, pipeline.WithEnhancer(orch), pipeline.WithEndpoint(a.endpoint))
		}
	}

	a.pipeline = pipeline.New(renderer, pipeOpts...)
	return a, nil
}

func (a *app) wireEnhancer() (*enhance.Orchestrator, error) {
	cfg := a.cfg
	remote := endpoint.NewHFRemote(endpoint.HFConfig{
		APIURL:       cfg.Endpoint.APIURL,
		Namespace:    cfg.Endpoint.Namespace,
		Name:         cfg.Endpoint.Name,
		Token:        cfg.Endpoint.Token(),
		MaxNewTokens: cfg.Endpoint.MaxNewTokens,
		Temperature:  cfg.Endpoint.Temperature,
	})
	a.endpoint = endpoint.NewLifecycle(remote,
		endpoint.WithPollInterval(cfg.Endpoint.PollInterval),
		endpoint.WithBootTimeout(cfg.Endpoint.BootTimeout),
		endpoint.WithInferTimeout(cfg.Endpoint.InferTimeout),
		endpoint.WithLogger(a.logger),
	)
	if cfg.Enhancement.KeepAlive > 0 {
		a.endpoint.SetKeepAlive(cfg.Enhancement.KeepAlive)
	}

	opts := []enhance.Option{
		enhance.WithEndpointName(cfg.Endpoint.Name),
		enhance.WithPromptTemplate(cfg.Enhancement.PromptTemplate),
		enhance.WithLogger(a.logger),
	}
	if cfg.History.Enabled {
		tr, err := tracker.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		a.tracker = tr
		opts = append(opts, enhance.WithRecorder(tr))
	}
	if cfg.Cache.Enabled {
		c, err := cachepkg.New(cfg.DBPath, cfg.Cache.TTL)
		if err != nil {
			return nil, err
		}
		a.cache = c
		opts = append(opts, enhance.WithCache(c))
	}

	return enhance.New(a.ledger, a.endpoint, abc.Extractor{}, opts...), nil
}

// Close releases the databases.
func (a *app) Close() error {
	var errs []error
	if a.tracker != nil {
		errs = append(errs, a.tracker.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	return errors.Join(errs...)
}
