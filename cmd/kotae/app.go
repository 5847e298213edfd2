package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/audit"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/grounding"
	"github.com/hyperjump/kotae/internal/handoff"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/pipeline"
	"github.com/hyperjump/kotae/internal/policy"
	"github.com/hyperjump/kotae/internal/quota"
	"github.com/hyperjump/kotae/internal/ratelimit"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
)

// app holds the initialized services shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	store    *storage.SQLiteStorage
	embedder embedding.Embedder
	indexer  *indexer.Indexer
	quota    *quota.Checker
	recorder *audit.Recorder
	pipeline *pipeline.Pipeline

	closeLimiter func() error
}

// newStoreApp opens only what ingestion and reporting need: storage, embeddings and the indexer.
func newStoreApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	registry := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics.New(registry),
		store:    store,
		quota:    quota.NewChecker(store, cfg.Limits),
	}
	a.embedder = newEmbedder(cfg.Embedding, logger)

	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if a.embedder != nil {
		idxOpts = append(idxOpts, indexer.WithEmbedder(a.embedder))
	}
	a.indexer = indexer.NewIndexer(store, extract.NewExtractor(), cfg.Retrieval, idxOpts...)
	return a, nil
}

// newApp opens everything, including the answer pipeline and its rate limiter.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a, err := newStoreApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.buildPipeline(); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) buildPipeline() error {
	cfg, logger := a.cfg, a.logger

	provider, err := llm.NewProvider(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize llm provider: %w", err)
	}
	generator := llm.NewGenerator(provider, grounding.RefusalSentence,
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithLogger(logger))

	limiter, closeLimiter, err := ratelimit.New(cfg.Limits, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	a.closeLimiter = closeLimiter

	engineOpts := []retrieval.Option{
		retrieval.WithLogger(logger),
		retrieval.WithObserver(a.metrics.ObserveRetrieval),
	}
	if a.embedder != nil {
		engineOpts = append(engineOpts, retrieval.WithEmbedder(a.embedder))
	}

	a.recorder = audit.NewRecorder(a.store,
		audit.WithDropHook(a.metrics.RecordDropped),
		audit.WithLogger(logger))

	p, err := pipeline.New(pipeline.Dependencies{
		Conversations: a.store,
		Documents:     a.store,
		Retriever:     retrieval.NewEngine(a.store, engineOpts...),
		Questions:     policy.NewEngine(a.store, logger),
		DocumentRules: policy.NewDocumentFilter(cfg.Documents.PrivilegedRole, cfg.Documents.RestrictedTags),
		Generator:     generator,
		Handoffs: handoff.NewCreator(a.store,
			handoff.WithWebhook(cfg.Handoff.WebhookURL),
			handoff.WithLogger(logger)),
		Limiter:  ratelimit.NewGuard(limiter, cfg.Limits, logger),
		Quota:    a.quota,
		Recorder: a.recorder,
	},
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithPersona(cfg.Persona),
		pipeline.WithGrounding(grounding.Options{
			MaxAnswerChars:   cfg.Grounding.MaxAnswerChars,
			HealWithTopChunk: cfg.Grounding.HealWithTopChunkOrDefault(),
		}),
		pipeline.WithDefaults(cfg.Retrieval.DefaultTopK, cfg.Retrieval.DefaultMemoryTurns),
	)
	if err != nil {
		return err
	}
	a.pipeline = p
	return nil
}

// newEmbedder returns the cached hosted embedder, or nil when embeddings are disabled or
// not configured. Without an embedder retrieval uses keyword search.
func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) embedding.Embedder {
	if !cfg.EnabledOrDefault() {
		return nil
	}
	e, err := embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, logger)
	if err != nil {
		logger.Warn("embeddings unavailable, retrieval will use keyword search", zap.Error(err))
		return nil
	}
	return embedding.NewCachedEmbedder(e, cfg.CacheSize)
}

// Close drains the audit queue and releases storage and limiter connections.
func (a *app) Close(ctx context.Context) {
	if a.recorder != nil {
		if err := a.recorder.Close(ctx); err != nil {
			a.logger.Warn("audit queue not fully drained", zap.Error(err))
		}
	}
	if a.closeLimiter != nil {
		_ = a.closeLimiter()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
