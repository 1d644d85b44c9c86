package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/pipeline"
	"github.com/prensa-labs/newsgraph/internal/resilience"
	"github.com/prensa-labs/newsgraph/internal/scorer"
	"github.com/prensa-labs/newsgraph/internal/store"
	"github.com/prensa-labs/newsgraph/internal/worker"
	anthropicpkg "github.com/prensa-labs/newsgraph/pkg/anthropic"
)

// serviceEnv holds the initialized store, model adapter, and orchestrator
// shared by the serve and process commands.
type serviceEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Metrics      *worker.Metrics
}

// Close releases resources held by the service environment.
func (se *serviceEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initService sets up the store, the model adapter, the importance scorer,
// and the orchestrator. Callers should defer env.Close().
func initService(ctx context.Context, mode string) (*serviceEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	adapter := llm.NewAdapter(client, llm.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         int64(cfg.Anthropic.MaxTokens),
		Timeout:           cfg.Anthropic.ModelTimeout(),
		RetryDelay:        cfg.Anthropic.RetryDelay(),
		RequestsPerMinute: cfg.Anthropic.RequestsPerMin,
	})

	// A missing or corrupt weight artifact disables relative scoring for
	// the process lifetime; every fact then gets the default importance.
	sc := scorer.Load(cfg.Scorer.WeightsPath, cfg.Pipeline.DefaultImportance)
	if sc.Disabled() {
		zap.L().Warn("importance scorer disabled, using default importance",
			zap.String("weights_path", cfg.Scorer.WeightsPath),
			zap.Int("default_importance", cfg.Pipeline.DefaultImportance))
	}

	table := resilience.NewFallbackTable(cfg.Pipeline.DefaultLanguage, cfg.Pipeline.DefaultImportance)
	metrics := worker.NewMetrics()
	orch := pipeline.NewOrchestrator(st, adapter, sc, table, metrics)

	return &serviceEnv{Store: st, Orchestrator: orch, Metrics: metrics}, nil
}
