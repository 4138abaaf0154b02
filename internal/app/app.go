// Package app assembles the assistant's dependencies from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ZhengWei0000/Shopping-Assistant/internal/assistant"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/catalog"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/config"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/llm"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/store"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/tools"
	"github.com/ZhengWei0000/Shopping-Assistant/internal/transcript"
)

// App holds the wired components shared by the server and the CLI.
type App struct {
	Engine      *assistant.Orchestrator
	Catalog     *catalog.Store
	Checkpoints store.CheckpointStore
	Tools       *tools.Registry
	Transcript  transcript.ConversationLogger
}

// Option customizes Build.
type Option func(*options)

type options struct {
	step   assistant.DecisionStep
	now    func() time.Time
	logger *slog.Logger
}

// WithDecisionStep replaces the configured LLM provider.
func WithDecisionStep(step assistant.DecisionStep) Option {
	return func(o *options) { o.step = step }
}

// WithClock overrides the clock used by time-dependent tools.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Build opens the stores, seeds the catalog, builds the tool registry and
// the decision step, and returns the orchestrator wired to all of them.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Checkpoints, err = store.Open(cfg.CheckpointBackend, cfg.DBPath, cfg.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	if err := a.Checkpoints.Ping(ctx); err != nil {
		return nil, fmt.Errorf("checkpoint store health check: %w", err)
	}

	a.Catalog, err = catalog.NewSQLite(cfg.CatalogDBPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if cfg.CatalogSeedPath != "" {
		products, err := catalog.LoadSeedFile(cfg.CatalogSeedPath)
		if err != nil {
			return nil, err
		}
		if _, err := a.Catalog.UpsertProducts(ctx, products); err != nil {
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	} else if err := catalog.SeedDefaults(ctx, a.Catalog); err != nil {
		return nil, fmt.Errorf("seed catalog: %w", err)
	}

	a.Tools, err = tools.NewRegistry(tools.Shopping(a.Catalog, o.now)...)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	step := o.step
	if step == nil {
		step, err = llm.New(llm.Config{
			Provider:      cfg.LLM.Provider,
			Model:         cfg.LLM.Model,
			BaseURL:       cfg.LLM.BaseURL,
			APIKey:        cfg.LLM.APIKey(),
			Temperature:   cfg.LLM.Temperature,
			MaxTokens:     cfg.LLM.MaxTokens,
			TextToolCalls: cfg.LLM.TextToolCalls,
		}, a.Tools.All())
		if err != nil {
			return nil, fmt.Errorf("build decision step: %w", err)
		}
	}

	a.Transcript, err = transcript.NewConversationLogger(transcript.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, o.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize conversation logger: %w", err)
	}

	engineOpts := []assistant.Option{assistant.WithLogger(o.logger)}
	if rec, ok := a.Transcript.(assistant.Recorder); ok {
		engineOpts = append(engineOpts, assistant.WithRecorder(rec))
	}
	a.Engine, err = assistant.New(step, a.Tools, a.Checkpoints, assistant.Config{
		DecisionMaxAttempts: cfg.Orchestrator.DecisionMaxAttempts,
		DecisionTimeout:     cfg.Orchestrator.DecisionTimeout,
		ToolTimeout:         cfg.Orchestrator.ToolTimeout,
		MaxToolRounds:       cfg.Orchestrator.MaxToolRounds,
		FailClosed:          cfg.Orchestrator.FailClosed,
	}, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return a, nil
}

// Ping checks both stores.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Checkpoints.Ping(ctx); err != nil {
		return fmt.Errorf("checkpoint store: %w", err)
	}
	if err := a.Catalog.Ping(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// Close releases everything Build opened.
func (a *App) Close() error {
	var errs []error
	if a.Transcript != nil {
		errs = append(errs, a.Transcript.Close())
	}
	if a.Catalog != nil {
		errs = append(errs, a.Catalog.Close())
	}
	if a.Checkpoints != nil {
		errs = append(errs, a.Checkpoints.Close())
	}
	return errors.Join(errs...)
}
