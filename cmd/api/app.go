package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/formbricks/precedent/internal/api/handlers"
	"github.com/formbricks/precedent/internal/api/middleware"
	"github.com/formbricks/precedent/internal/config"
	"github.com/formbricks/precedent/internal/ingest"
	"github.com/formbricks/precedent/internal/jobs"
	"github.com/formbricks/precedent/internal/models"
	"github.com/formbricks/precedent/internal/observability"
	"github.com/formbricks/precedent/internal/repository"
	"github.com/formbricks/precedent/internal/service"
	"github.com/formbricks/precedent/pkg/cache"
)

const (
	serviceName        = "precedent-api"
	queueDepthInterval = 15 * time.Second
	riverJobTimeout    = 15 * time.Minute
	maxJSONBodyBytes   = 1 << 20
)

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg            *config.Config
	db             *pgxpool.Pool
	server         *http.Server
	river          *river.Client[pgx.Tx]
	queueRepo      *repository.EmbeddingQueueRepository
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *observability.Metrics
}

// setupMetrics creates the meter provider and precedent metrics. With OTEL_METRICS_EXPORTER=otlp
// metrics are pushed; otherwise they are served on /metrics by the Prometheus exporter.
// Returns all nils when METRICS_ENABLED is false.
func setupMetrics(
	ctx context.Context, cfg *config.Config,
) (*sdkmetric.MeterProvider, http.Handler, *observability.Metrics, error) {
	if !cfg.MetricsEnabled {
		return nil, nil, nil, nil
	}

	var (
		mp      *sdkmetric.MeterProvider
		handler http.Handler
		err     error
	)

	if cfg.OtelMetricsExporter == "otlp" {
		mp, err = observability.NewOTLPMeterProvider(ctx, cfg, serviceName)
	} else {
		mp, handler, err = observability.NewPrometheusMeterProvider(observability.MeterProviderConfig{ServiceName: serviceName})
	}

	if err != nil {
		return nil, nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	metrics, err := observability.NewMetrics(mp.Meter(observability.MeterScope))
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, handler, metrics, nil
}

// newRateLimiter returns the provider call limiter. A zero rate means unlimited.
func newRateLimiter(cfg *config.Config) *rate.Limiter {
	if cfg.EmbeddingRateLimit <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), cfg.EmbeddingRateBurst)
}

// routes holds the handlers mounted by newRouter.
type routes struct {
	health          *handlers.HealthHandler
	ingestions      *handlers.IngestionHandler
	embeddingQueue  *handlers.EmbeddingQueueHandler
	cases           *handlers.CasesHandler
	typicalExamples *handlers.TypicalExamplesHandler
	retrieval       *handlers.RetrievalHandler
	metrics         http.Handler
}

// NewApp builds and wires all components. It does not start the HTTP server or River;
// call Run to start and block until shutdown or failure.
func NewApp(ctx context.Context, cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	meterProvider, metricsHandler, metrics, err := setupMetrics(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if meterProvider == nil {
		slog.Warn("metrics not enabled (METRICS_ENABLED=false)")
	} else {
		otel.SetMeterProvider(meterProvider)
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, cfg, serviceName)
	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
			slog.Error("shutdown meter provider after tracer provider error", "error", err2)
		}

		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	if tracerProvider == nil {
		slog.Warn("tracing not enabled (OTEL_TRACES_EXPORTER empty or unset)")
	} else {
		otel.SetTracerProvider(tracerProvider)
	}

	var (
		ingestMetrics    observability.IngestMetrics
		embeddingMetrics observability.EmbeddingMetrics
		typicalMetrics   observability.TypicalExampleMetrics
		cacheMetrics     observability.CacheMetrics
		apiMetrics       observability.APIMetrics
	)
	if metrics != nil {
		ingestMetrics = metrics.Ingest
		embeddingMetrics = metrics.Embeddings
		typicalMetrics = metrics.TypicalExamples
		cacheMetrics = metrics.Cache
		apiMetrics = metrics.API
	}

	shutdownObs := func(cause string) {
		if err := shutdownObservability(context.Background(), tracerProvider, meterProvider); err != nil {
			slog.Error("shutdown observability after "+cause, "error", err)
		}
	}

	embeddingClient, err := service.NewEmbeddingClient(ctx, cfg)
	if err != nil {
		shutdownObs("embedding client error")

		return nil, err
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingClient != nil {
		embeddingModel = embeddingClient.Model()
		slog.Info("embeddings enabled", "provider", cfg.EmbeddingProvider, "model", embeddingModel)
	} else {
		slog.Info("embeddings disabled (EMBEDDING_PROVIDER not set)")
	}

	casesRepo := repository.NewCasesRepository(db)
	responsesRepo := repository.NewResponsesRepository(db)
	embeddingsRepo := repository.NewEmbeddingsRepository(db)
	queueRepo := repository.NewEmbeddingQueueRepository(db)
	typicalRepo := repository.NewTypicalExamplesRepository(db)

	var (
		riverClient *river.Client[pgx.Tx]
		kicker      ingest.DrainKicker
		processor   handlers.QueueProcessor
	)

	if embeddingClient != nil {
		queueWorker := service.NewEmbeddingQueueWorker(service.EmbeddingQueueWorkerParams{
			Queue:       queueRepo,
			Client:      embeddingClient,
			Model:       embeddingModel,
			Limiter:     newRateLimiter(cfg),
			ItemTimeout: cfg.EmbeddingItemTimeout,
			Metrics:     embeddingMetrics,
		})
		processor = queueWorker

		riverClient, err = newRiverClient(cfg, db, queueWorker, queueRepo)
		if err != nil {
			shutdownObs("River client error")

			return nil, err
		}

		kicker = jobs.NewDrainKicker(riverClient, cfg.EmbeddingBatchLimit)
	}

	pipeline := ingest.NewPipeline(ingest.PipelineParams{
		Store:  repository.NewIngestStore(db),
		Queue:  queueRepo,
		Kicker: kicker,
		Schema: ingest.DefaultSchema(),
		Options: ingest.Options{
			BatchSize:      cfg.IngestBatchSize,
			MaxInvalidRows: cfg.IngestMaxInvalidRows,
			MaxHeaderSkip:  cfg.IngestMaxHeaderSkip,
			FlushTimeout:   cfg.IngestFlushTimeout,
		},
		Metrics: ingestMetrics,
	})

	typicalService := service.NewTypicalExamplesService(service.TypicalExamplesServiceParams{
		Members:       embeddingsRepo,
		Repo:          typicalRepo,
		Model:         embeddingModel,
		DefaultK:      cfg.TypicalExampleK,
		MaxIterations: cfg.KMeansMaxIterations,
		Metrics:       typicalMetrics,
	})

	retrievalService := service.NewRetrievalService(service.RetrievalServiceParams{
		Responses:       responsesRepo,
		Corpus:          embeddingsRepo,
		EmbeddingClient: embeddingClient,
		Model:           embeddingModel,
		QueryCache:      cache.NewLoaderCache[string, []float32](cfg.QueryCacheSize, cfg.QueryCacheTTL, func(s string) string { return s }),
		CacheMetrics:    cacheMetrics,
	})

	server := newHTTPServer(cfg, apiMetrics, meterProvider, tracerProvider, routes{
		health:          handlers.NewHealthHandler(db),
		ingestions:      handlers.NewIngestionHandler(pipeline, cfg.IngestMaxBodyBytes),
		embeddingQueue:  handlers.NewEmbeddingQueueHandler(processor, cfg.EmbeddingBatchLimit),
		cases:           handlers.NewCasesHandler(casesRepo),
		typicalExamples: handlers.NewTypicalExamplesHandler(typicalService),
		retrieval:       handlers.NewRetrievalHandler(retrievalService, embeddingClient != nil),
		metrics:         metricsHandler,
	})

	return &App{
		cfg:            cfg,
		db:             db,
		server:         server,
		river:          riverClient,
		queueRepo:      queueRepo,
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		metrics:        metrics,
	}, nil
}

// newRiverClient registers the drain worker on the embeddings queue and schedules the
// periodic drain that also requeues failed items.
func newRiverClient(
	cfg *config.Config, db *pgxpool.Pool, drainer jobs.QueueDrainer, requeuer jobs.FailedRequeuer,
) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewEmbeddingDrainWorker(drainer, requeuer, cfg.EmbeddingMaxAttempts, nil))

	client, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			jobs.EmbeddingsQueueName: {MaxWorkers: cfg.EmbeddingMaxConcurrent},
		},
		Workers:      workers,
		ErrorHandler: &jobs.ErrorHandler{},
		JobTimeout:   riverJobTimeout,
		PeriodicJobs: []*river.PeriodicJob{
			jobs.PeriodicDrain(cfg.EmbeddingDrainInterval, cfg.EmbeddingBatchLimit),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return client, nil
}

// newHTTPServer builds the router: /health, /ready and /metrics are public, everything under
// /v1 needs the API key. Handler chain: RequestID -> otelhttp -> Logging -> router, so access
// logs carry trace_id and request_id.
func newHTTPServer(
	cfg *config.Config,
	apiMetrics observability.APIMetrics,
	meterProvider *sdkmetric.MeterProvider,
	tracerProvider *sdktrace.TracerProvider,
	h routes,
) *http.Server {
	var bodyTooLarge middleware.RequestBodyTooLargeRecorder
	if apiMetrics != nil {
		bodyTooLarge = apiMetrics
	}

	r := chi.NewRouter()
	r.Use(middleware.Metrics(apiMetrics))

	r.Get("/health", h.health.Check)
	r.Get("/ready", h.health.Ready)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))

		// Uploads stream their body and bound it themselves.
		r.Post("/ingestions", h.ingestions.Create)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBody(maxJSONBodyBytes, bodyTooLarge))

			r.Post("/embedding-queue/process", h.embeddingQueue.Process)

			r.Get("/cases/{caseID}", h.cases.Get)
			r.Delete("/cases/{caseID}", h.cases.Delete)
			r.Post("/cases/{caseID}/typical-examples", h.typicalExamples.Build)
			r.Get("/cases/{caseID}/typical-examples", h.typicalExamples.List)
			r.Post("/cases/{caseID}/precedents", h.retrieval.Precedents)

			r.Post("/similar/cases", h.retrieval.SimilarCases)
			r.Post("/similar/questions", h.retrieval.SimilarQuestions)
		})
	})

	otelOpts := []otelhttp.Option{
		// Skip tracing and HTTP metrics for probes and scrapes to reduce noise.
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/ready" && r.URL.Path != "/metrics"
		}),
	}
	if meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(meterProvider))
	}

	if tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(tracerProvider))
	}

	// Logging runs inside otelhttp so r.Context() has the span when we log.
	inner := middleware.Logging(r)
	handler := otelhttp.NewHandler(inner, serviceName, otelOpts...)
	handler = middleware.RequestID(handler)

	const (
		readHeaderTimeout = 15 * time.Second
		idleTimeout       = 60 * time.Second
	)

	// No read or write timeout: an ingestion upload streams for as long as the file is.
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled (e.g. signal)
// or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	if a.metrics != nil && a.metrics.Embeddings != nil {
		go runQueueDepthPoller(riverCtx, a.queueRepo, a.metrics.Embeddings)
	}

	if a.river != nil {
		go func() {
			if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
				select {
				case runErr <- fmt.Errorf("river: %w", err):
				default:
				}
			}
		}()
	}

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// queueCounter reports embedding queue sizes by status.
type queueCounter interface {
	CountByStatus(ctx context.Context) (map[models.QueueStatus]int, error)
}

// runQueueDepthPoller periodically updates the embedding queue depth gauge.
func runQueueDepthPoller(ctx context.Context, queue queueCounter, embeddingMetrics observability.EmbeddingMetrics) {
	ticker := time.NewTicker(queueDepthInterval)
	defer ticker.Stop()

	update := func() {
		counts, err := queue.CountByStatus(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "embedding queue depth poll failed", "error", err)
			}

			return
		}

		embeddingMetrics.SetQueueDepth(counts[models.QueueStatusPending], counts[models.QueueStatusFailed])
	}

	update()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

// shutdownObservability shuts down tracer and meter providers. Logs secondary errors, returns the first.
func shutdownObservability(ctx context.Context, tracer *sdktrace.TracerProvider, meter *sdkmetric.MeterProvider) error {
	var first error

	if tracer != nil {
		if err := observability.ShutdownTracerProvider(ctx, tracer); err != nil {
			first = err
		}
	}

	if meter != nil {
		if err := observability.ShutdownMeterProvider(ctx, meter); err != nil {
			if first == nil {
				first = err
			} else {
				slog.Error("shutdown meter provider", "error", err)
			}
		}
	}

	return first
}

// Shutdown stops the server and River in order. Call after Run returns.
// Observability is shut down once via defer; its error is returned only when server and River shut down successfully.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := shutdownObservability(ctx, a.tracerProvider, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown observability", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if a.river != nil {
			if stopErr := a.river.Stop(ctx); stopErr != nil {
				slog.Error("river stop during server shutdown", "error", stopErr)
			}
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if a.river == nil {
		return nil
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
