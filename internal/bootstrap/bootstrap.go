package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/invoice-router/internal/config"
	"github.com/kirillkom/invoice-router/internal/core/domain"
	"github.com/kirillkom/invoice-router/internal/core/ports"
	"github.com/kirillkom/invoice-router/internal/core/usecase"
	"github.com/kirillkom/invoice-router/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/invoice-router/internal/infrastructure/policyfile"
	"github.com/kirillkom/invoice-router/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-router/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/invoice-router/internal/infrastructure/resilience"
	"github.com/kirillkom/invoice-router/internal/observability/metrics"
)

type Options struct {
	// Component labels logs and Prometheus series ("api", "worker", "batch").
	Component string
	// Registerer receives pipeline and breaker metrics. Nil disables them.
	Registerer prometheus.Registerer
	// RequireSink opens Postgres even when RESULT_SINK_ENABLED is false.
	RequireSink bool
	// WithQueue connects to NATS.
	WithQueue bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger
	Policy *domain.Policy

	Metrics   *usecase.MetricsAggregator
	ProcessUC *usecase.ProcessInvoiceUseCase
	BatchUC   *usecase.BatchUseCase
	Executor  *resilience.Executor

	// Sink and Queue are nil unless enabled.
	Sink  ports.DecisionSink
	Queue *nats.Queue

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	policy, err := loadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	app.Policy = policy

	var observer ports.OutcomeObserver
	executor := resilience.NewExecutor(resilience.DefaultConfig(), logger).
		WithOperationConfig("nats.publish", resilience.PublishConfig())
	if opts.Registerer != nil {
		pipeline := metrics.NewPipelineMetrics(opts.Component, opts.Registerer)
		observer = pipeline
		executor.WithStateObserver(pipeline)
	}
	app.Executor = executor

	if cfg.ResultSinkEnabled || opts.RequireSink {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewDecisionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.Sink = repo
		app.closeFns = append(app.closeFns, func() { _ = db.Close() })
	}

	if opts.WithQueue {
		queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
	}

	client := ollama.New(ollama.Options{
		BaseURL:       cfg.OllamaURL,
		GenModel:      cfg.OllamaGenModel,
		MaxContent:    cfg.ExtractionMaxContent,
		RatePerSecond: cfg.ExtractionRatePerSec,
		Burst:         cfg.ExtractionBurst,
		Timeout:       cfg.ExtractionTimeout,
	}, executor)
	extractor := ollama.NewExtractor(client, logger)

	app.Metrics = usecase.NewMetricsAggregator(observer)
	app.ProcessUC = usecase.NewProcessInvoiceUseCase(
		policy,
		usecase.NewClassifier(cfg.ClassifierCacheEnabled),
		extractor,
		app.Metrics,
		logger,
	)
	app.BatchUC = usecase.NewBatchUseCase(app.ProcessUC, app.Metrics, app.Sink, logger)

	logger.Info("bootstrap_ready",
		"policy_file", cfg.PolicyFile,
		"sink_enabled", app.Sink != nil,
		"queue_enabled", app.Queue != nil,
	)
	return app, nil
}

func loadPolicy(path string) (*domain.Policy, error) {
	if path == "" {
		return domain.DefaultPolicy(), nil
	}
	policy, err := policyfile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return policy, nil
}

// BatchOptions returns the configured batch runner settings.
func (a *App) BatchOptions() usecase.BatchOptions {
	return usecase.BatchOptions{
		Workers:         a.Config.BatchWorkers,
		DocumentTimeout: a.Config.DocumentTimeout,
	}
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
