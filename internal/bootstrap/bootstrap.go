package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/smartdoc-agent/internal/config"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
	"github.com/kirillkom/smartdoc-agent/internal/core/usecase"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/queue/nats"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/ratelimit"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/resilience"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/session/memory"
	"github.com/kirillkom/smartdoc-agent/internal/observability/logging"
	"github.com/kirillkom/smartdoc-agent/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Catalog config.Catalog
	Logger  *slog.Logger

	Ingestor *usecase.IngestDocumentUseCase
	Sessions *usecase.SessionUseCase
	Exporter *xlsx.Exporter

	// Metrics and Progress are nil when disabled in config.
	Metrics  *metrics.AnalysisMetrics
	Progress *nats.ProgressPublisher

	closeFn func()
}

// New wires the application for one process. service labels logs and
// metrics.
func New(_ context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewJSONLogger(service, cfg.LogLevel)
	}
	catalog, err := config.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	for _, problem := range cfg.Validate() {
		logger.Warn("config_problem", "problem", problem)
	}

	var (
		observer      ports.AnalysisObserver
		reporters     usecase.FanOutReporter
		analysisStats *metrics.AnalysisMetrics
	)
	reporters = append(reporters, logging.NewProgressLogger(logger))
	if cfg.MetricsEnabled {
		analysisStats = metrics.NewAnalysisMetrics(service)
		observer = analysisStats
		reporters = append(reporters, analysisStats)
	}

	var progress *nats.ProgressPublisher
	if cfg.NATSURL != "" {
		progress, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSProgressSubject, nats.Options{
			Logger: logger,
		})
		if err != nil {
			// Progress events are a side channel; the app runs without them.
			logger.Warn("progress_publisher_disabled", "error", err)
		} else {
			reporters = append(reporters, progress)
		}
	}

	ingestor := usecase.NewIngestDocumentUseCase(
		pdftext.NewExtractor(),
		usecase.IngestLimits{
			AllowedExtensions: cfg.AllowedExtensions,
			MinSizeBytes:      cfg.MinUploadBytes,
			MaxSizeBytes:      cfg.MaxUploadBytes,
			PageCap:           cfg.PageCap,
			MaxTextChars:      cfg.MaxTextChars,
		},
		observer,
		logger,
	)

	rpm := cfg.RequestsPerMinute
	factory := usecase.NewAnalyzerFactory(
		gemini.Connector(cfg.GeminiModel),
		func() ports.RateLimiter { return ratelimit.New(rpm) },
		providerExecutors(cfg, logger),
		usecase.AnalysisOptions{
			MinTextChars: cfg.MinTextChars,
			Observer:     observer,
			Logger:       logger,
		},
	)

	sessions := usecase.NewSessionUseCase(
		memory.NewSessionStore(),
		ingestor,
		usecase.NewAnalyzerRegistry(factory),
		usecase.BatchOptions{
			Cooldown:        cfg.BatchCooldown,
			IncludeMetadata: false,
			Reporter:        reporters,
			Observer:        observer,
			Logger:          logger,
		},
		logger,
	)

	logger.Info("app_ready",
		"profile", cfg.Profile,
		"model", cfg.GeminiModel,
		"requests_per_minute", rpm,
		"metrics", cfg.MetricsEnabled,
		"progress_events", progress != nil,
	)

	return &App{
		Config:  cfg,
		Catalog: catalog,
		Logger:  logger,

		Ingestor: ingestor,
		Sessions: sessions,
		Exporter: xlsx.NewExporter(),

		Metrics:  analysisStats,
		Progress: progress,

		closeFn: func() {
			if progress != nil {
				progress.Close()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// providerExecutors gives every analysis client its own executor, so one
// session's failures never open the circuit for another.
func providerExecutors(cfg config.Config, logger *slog.Logger) ports.CallExecutorFactory {
	policy := resilienceConfig(cfg)
	return func() ports.CallExecutor {
		return resilience.NewExecutor(policy).WithLogger(logger).Bind(gemini.ClassifyError)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = cfg.RetryInitialBackoff
	out.RetryMaxBackoff = cfg.RetryMaxBackoff
	out.RetryMultiplier = cfg.RetryMultiplier
	out.BreakerEnabled = cfg.BreakerEnabled
	return out
}
