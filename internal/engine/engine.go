package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"gamevault/internal/catalog"
	"gamevault/internal/config"
	"gamevault/internal/docstore"
	"gamevault/internal/events"
	"gamevault/internal/library"
	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/notifications"
	"gamevault/internal/ranking"
	"gamevault/internal/ratelimit"
	"gamevault/internal/reconcile"
	"gamevault/internal/resolver"
	"gamevault/internal/webhooks"
)

const eventBufferSize = 1024

// Engine holds the wired components.
type Engine struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Events     *events.Hub
	Notifier   notifications.Notifier
	Repository *library.Repository
	Connection *catalog.Connection
	Catalog    *catalog.BatchClient
	Ranker     *ranking.Ranker
	Resolver   *resolver.Resolver
	Pipeline   *webhooks.Pipeline
	Dispatcher *webhooks.Dispatcher
	Reconciler *reconcile.Reconciler
	Scheduler  *reconcile.Scheduler
}

// New wires every component on top of store. The store stays owned by the
// caller.
func New(ctx context.Context, cfg *config.Config, store docstore.Store, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	m := metrics.New()
	hub := events.NewHub(eventBufferSize)
	notifier := notifications.NewSink(cfg, logger)
	sink := events.Multi{hub, events.NewLogSink(logger), notifier}

	conn, batch, err := NewCatalog(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}
	ranker := NewRanker(cfg, batch, logger)

	repo := library.New(store, library.WithLogger(logger))
	res, err := resolver.New(batch, ranker, repo, Thresholds(cfg), resolver.WithSink(sink), resolver.WithMetrics(m), resolver.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}

	pipeline := webhooks.NewPipeline(webhooks.RulesFromConfig(cfg.Webhooks), res, repo,
		webhooks.WithFetcher(batch),
		webhooks.WithSink(sink),
		webhooks.WithMetrics(m),
		webhooks.WithLogger(logger),
	)
	dispatcher := webhooks.NewDispatcher(pipeline, cfg.Webhooks.Workers, cfg.Webhooks.QueueDepth, logger)

	reconciler := reconcile.New(res, repo, cfg.Reconcile.Concurrency,
		reconcile.WithSink(sink),
		reconcile.WithMetrics(m),
		reconcile.WithLogger(logger),
	)
	interval := cfg.ReconcileInterval()
	if !cfg.Reconcile.Enabled {
		interval = 0
	}

	return &Engine{
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Events:     hub,
		Notifier:   notifier,
		Repository: repo,
		Connection: conn,
		Catalog:    batch,
		Ranker:     ranker,
		Resolver:   res,
		Pipeline:   pipeline,
		Dispatcher: dispatcher,
		Reconciler: reconciler,
		Scheduler:  reconcile.NewScheduler(reconciler, interval, logger),
	}, nil
}

// NewCatalog builds the connection and the batch client on top of it. The
// CLI uses it for commands that never touch the store.
func NewCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*catalog.Connection, *catalog.BatchClient, error) {
	conn, err := NewConnection(ctx, cfg, logger, m)
	if err != nil {
		return nil, nil, err
	}
	batch := catalog.NewBatchClient(conn, catalog.BatchOptions{
		MaxBatchSize:   cfg.Catalog.MaxBatchSize,
		FanOut:         cfg.Catalog.FanOut,
		MaxRetries:     cfg.Catalog.MaxRetries,
		InitialBackoff: cfg.InitialBackoff(),
		MaxBackoff:     cfg.MaxBackoff(),
	}, catalog.WithBatchLogger(logger), catalog.WithBatchMetrics(m))
	return conn, batch, nil
}

// NewRanker builds a ranker with the configured weights.
func NewRanker(cfg *config.Config, searcher ranking.Searcher, logger *slog.Logger) *ranking.Ranker {
	return ranking.New(searcher, ranking.Options{
		SimilarityWeight: cfg.Resolver.SimilarityWeight,
		YearWeight:       cfg.Resolver.YearWeight,
		PlatformWeight:   cfg.Resolver.PlatformWeight,
		YearTolerance:    cfg.Resolver.YearTolerance,
		SearchLimit:      cfg.Resolver.SearchLimit,
	}, logger)
}

// Thresholds returns the configured auto-accept thresholds.
func Thresholds(cfg *config.Config) resolver.Thresholds {
	return resolver.Thresholds{
		HighConfidence: cfg.Resolver.HighConfidence,
		MinGap:         cfg.Resolver.MinGap,
		CandidateCount: cfg.Resolver.CandidateCount,
	}
}

// NewConnection builds the rate-limited catalog connection alone. Preflight
// uses it without a store.
func NewConnection(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*catalog.Connection, error) {
	tokens, err := catalog.NewTokenSource(ctx, cfg.Catalog.ClientID, cfg.Catalog.ClientSecret, cfg.Catalog.AccessToken, cfg.Catalog.TokenURL)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(cfg.Catalog.QPS, cfg.Catalog.MaxConnections)
	if err != nil {
		return nil, err
	}
	return catalog.NewConnection(cfg.Catalog.ClientID, tokens, limiter,
		catalog.WithBaseURL(cfg.Catalog.BaseURL),
		catalog.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
		catalog.WithMetrics(m),
		catalog.WithLogger(logger),
	)
}
