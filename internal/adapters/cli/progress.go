package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

// ProgressPrinter writes one line per finished batch item.
type ProgressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{w: w}
}

func (p *ProgressPrinter) ReportProgress(_ context.Context, progress domain.BatchProgress) {
	status := "ok"
	if !progress.Succeeded {
		status = "failed"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%d/%d] %s %s\n", progress.Completed, progress.Total, progress.Document, status)
}
