package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/smartdoc-agent/internal/adapters/mcp"
	"github.com/kirillkom/smartdoc-agent/internal/bootstrap"
	"github.com/kirillkom/smartdoc-agent/internal/config"
	"github.com/kirillkom/smartdoc-agent/internal/observability/logging"
)

const service = "smartdoc-mcp"

// stdout carries the MCP protocol, so every log line goes to stderr.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, service, cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(mcpadapter.Deps{
		Sessions:   app.Sessions,
		Ingestor:   app.Ingestor,
		Credential: cfg.GeminiAPIKey,
		Root:       os.Getenv("SMARTDOC_MCP_ROOT"),
		Logger:     logger,
	})
	err = server.ServeStdio()
	if closeErr := server.Close(context.Background()); closeErr != nil {
		logger.Warn("mcp_session_end_failed", "error", closeErr)
	}
	if err != nil {
		logger.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}
