package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/legal-lens/internal/config"
	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
	"github.com/kirillkom/legal-lens/internal/core/usecase"
	"github.com/kirillkom/legal-lens/internal/infrastructure/cache/memory"
	"github.com/kirillkom/legal-lens/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-lens/internal/infrastructure/export/pdf"
	"github.com/kirillkom/legal-lens/internal/infrastructure/extractor/local"
	"github.com/kirillkom/legal-lens/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/legal-lens/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-lens/internal/infrastructure/redflag"
	"github.com/kirillkom/legal-lens/internal/infrastructure/repository/bolt"
	"github.com/kirillkom/legal-lens/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-lens/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-lens/internal/infrastructure/session/lru"
	"github.com/kirillkom/legal-lens/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/legal-lens/internal/infrastructure/vector/flat"
	"github.com/kirillkom/legal-lens/internal/infrastructure/workerpool"
	"github.com/kirillkom/legal-lens/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics
	Blobs   *localfs.Storage
	Events  *nats.Publisher

	UploadUC    *usecase.UploadUseCase
	QueryUC     ports.DocumentQueryService
	ChatUC      ports.ChatService
	ExplainUC   ports.ClauseExplainer
	SummaryUC   *usecase.SummaryUseCase
	RiskUC      ports.RiskAnalyzer
	CacheInfoUC ports.CacheInspector

	enrichment *usecase.EnrichmentUseCase
	closers    []func() error
}

func New(ctx context.Context, cfg config.Config, httpMetrics *metrics.HTTPServerMetrics) (*App, error) {
	app := &App{Config: cfg, Metrics: httpMetrics}
	ok := false
	defer func() {
		if !ok {
			app.closeResources()
		}
	}()

	var cacheMetrics ports.CacheMetrics
	var embeddingRecorder memory.LookupRecorder
	if httpMetrics != nil {
		cacheMetrics = httpMetrics
		embeddingRecorder = httpMetrics
	}

	snapshots, err := app.openSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	blobs, err := localfs.NewWithOptions(cfg.StoragePath, localfs.Options{
		PublicBaseURL: cfg.PublicBaseURL + "/v1/blobs",
		SigningKey:    []byte(cfg.BlobSigningKey),
	})
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}
	app.Blobs = blobs

	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		eventPolicy := resilience.EventConfig()
		eventPolicy.BreakerEnabled = cfg.ResilienceBreakerEnabled
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(eventPolicy),
		})
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		app.Events = publisher
		events = publisher
		app.closers = append(app.closers, func() error {
			publisher.Close()
			return nil
		})
	}

	pool := workerpool.New(cfg.WorkerPoolSize)
	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		ResilienceExecutor: newModelExecutor(cfg),
		Pool:               pool,
	})
	generator := ollama.NewGenerator(ollamaClient)
	chatModel := ollama.NewChatModel(ollamaClient)
	extractor := local.NewExtractor()
	summarizer := ollama.NewSummarizer(generator, extractor, 0)

	embeddings := memory.NewEmbeddingCache(ollama.NewEmbedder(ollamaClient), memory.EmbeddingCacheOptions{
		BatchSize:  cfg.EmbeddingBatchSize,
		MaxEntries: cfg.EmbeddingCacheMaxEntries,
		Recorder:   embeddingRecorder,
	})

	var sessions *lru.Registry
	docs := memory.NewDocumentCache(cfg.DocumentCacheMaxEntries, func(key domain.CacheKey) {
		if sessions != nil {
			sessions.Forget(key)
		}
	})
	sessions = lru.NewRegistry(cfg.ChatSessionCapacity, docs, chatModel, cacheMetrics)

	app.enrichment = usecase.NewEnrichmentUseCase(docs, summarizer, generator, events, cacheMetrics, usecase.EnrichmentOptions{
		SummaryTimeout:            cfg.SummaryTimeout,
		ReleaseSourceAfterSummary: cfg.ReleaseSourceAfterSum,
	})

	indexes := flat.NewBuilder()
	app.UploadUC = usecase.NewUploadUseCase(usecase.UploadDeps{
		Docs:      docs,
		Snapshots: snapshots,
		Blobs:     blobs,
		Extractor: extractor,
		Chunker:   chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinChars),
		Embedder:  embeddings,
		Scanner:   redflag.NewScanner(nil),
		Indexes:   indexes,
		Pool:      pool,
		Events:    events,
		Enricher:  app.enrichment,
		Metrics:   cacheMetrics,
	}, usecase.UploadOptions{
		MaxUploadBytes:       cfg.MaxUploadBytes,
		AllowedPatterns:      cfg.UploadAllowedPatterns,
		FastPathMaxPages:     cfg.FastPathMaxPages,
		FastExtractTimeout:   cfg.FastExtractTimeout,
		RobustExtractTimeout: cfg.RobustExtractTimeout,
	})

	retriever := usecase.NewRetriever(docs, embeddings, indexes, cfg.RetrievalTopK)
	app.QueryUC = usecase.NewQueryUseCase(retriever, generator)
	app.ChatUC = usecase.NewChatUseCase(retriever, sessions, chatModel)
	app.ExplainUC = usecase.NewExplainUseCase(docs, generator)
	app.RiskUC = usecase.NewRiskUseCase(docs, generator)
	app.SummaryUC = usecase.NewSummaryUseCase(docs, summarizer, pdf.NewRenderer(pdf.DefaultDisclaimer), blobs, usecase.SummaryOptions{
		SummaryTimeout:            cfg.SummaryTimeout,
		ExportURLTTL:              cfg.ExportURLTTL,
		ReleaseSourceAfterSummary: cfg.ReleaseSourceAfterSum,
	})
	app.CacheInfoUC = usecase.NewCacheInfoUseCase(docs, sessions, embeddings)

	ok = true
	return app, nil
}

// openSnapshotStore returns nil when durable caching is disabled.
func (a *App) openSnapshotStore(ctx context.Context, cfg config.Config) (ports.SnapshotStore, error) {
	switch cfg.DocCacheBackend {
	case config.DocCacheBackendBolt:
		store, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt snapshot store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.DocCacheBackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store := postgres.NewSnapshotStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// newModelExecutor guards Ollama calls; the retry override applies to them only.
func newModelExecutor(cfg config.Config) *resilience.Executor {
	rc := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		rc.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	rc.BreakerEnabled = cfg.ResilienceBreakerEnabled
	return resilience.NewExecutor(rc)
}

// Close stops background enrichment, waits for pending snapshot writes and
// releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.enrichment != nil {
		if err := a.enrichment.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown enrichment: %w", err))
		}
	}
	if a.UploadUC != nil {
		a.UploadUC.WaitSnapshots()
	}
	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close_resource_failed", "error", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
