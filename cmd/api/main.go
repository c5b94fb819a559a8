package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/kirillkom/smartdoc-agent/internal/adapters/http"
	"github.com/kirillkom/smartdoc-agent/internal/bootstrap"
	"github.com/kirillkom/smartdoc-agent/internal/config"
	"github.com/kirillkom/smartdoc-agent/internal/observability/logging"
	"github.com/kirillkom/smartdoc-agent/internal/observability/metrics"
)

const service = "smartdoc-api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := httpadapter.Options{
		DefaultCredential: cfg.GeminiAPIKey,
		IncludeMetadata:   cfg.IncludeMetadata,
		MaxUploadBytes:    int64(cfg.MaxUploadBytes),
		RateLimitRPS:      cfg.APIRateLimitRPS,
		RateLimitBurst:    cfg.APIRateLimitBurst,
		MaxInFlight:       cfg.APIMaxInFlight,
		BackpressureWait:  cfg.APIBackpressureWait,
		Catalog:           app.Catalog,
		Exporter:          app.Exporter,
		Logger:            logger,
	}
	if cfg.MetricsEnabled {
		httpMetrics := metrics.NewHTTPServerMetrics(service)
		var extra []prometheus.Gatherer
		if app.Metrics != nil {
			extra = append(extra, app.Metrics.Gatherer())
		}
		opts.MetricsHandler = httpMetrics.Handler(extra...)
		opts.Middleware = func(next http.Handler) http.Handler {
			return httpMetrics.Middleware(service, next)
		}
		opts.UploadObserver = func(size int) {
			httpMetrics.RecordUpload(service, size)
		}
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           httpadapter.NewRouter(app.Sessions, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      15 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
