package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/smartdoc-agent/internal/adapters/cli"
	"github.com/kirillkom/smartdoc-agent/internal/bootstrap"
	"github.com/kirillkom/smartdoc-agent/internal/config"
	"github.com/kirillkom/smartdoc-agent/internal/observability/logging"
)

const service = "smartdoc-cli"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, service, envOr("SMARTDOC_CLI_LOG_LEVEL", "warn"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartdoc: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	deps := cli.Deps{
		Sessions:          app.Sessions,
		Ingestor:          app.Ingestor,
		Exporter:          app.Exporter,
		Catalog:           app.Catalog,
		DefaultCredential: cfg.GeminiAPIKey,
		IncludeMetadata:   cfg.IncludeMetadata,
	}
	if app.Progress != nil {
		deps.Watcher = app.Progress
	}

	if err := cli.NewRootCommand(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "smartdoc: %v\n", err)
		app.Close()
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
