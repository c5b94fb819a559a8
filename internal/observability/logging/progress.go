package logging

import (
	"context"
	"log/slog"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

// ProgressLogger writes batch progress as structured log records.
type ProgressLogger struct {
	logger *slog.Logger
}

func NewProgressLogger(logger *slog.Logger) *ProgressLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressLogger{logger: logger}
}

func (p *ProgressLogger) ReportProgress(ctx context.Context, progress domain.BatchProgress) {
	level := slog.LevelInfo
	if !progress.Succeeded {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "batch_progress",
		"document", progress.Document,
		"completed", progress.Completed,
		"total", progress.Total,
		"succeeded", progress.Succeeded,
	)
}
