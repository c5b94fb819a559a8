package usecase

import (
	"context"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

// FanOutReporter forwards progress to every non-nil reporter in order.
type FanOutReporter []ports.ProgressReporter

func (f FanOutReporter) ReportProgress(ctx context.Context, progress domain.BatchProgress) {
	for _, r := range f {
		if r != nil {
			r.ReportProgress(ctx, progress)
		}
	}
}
