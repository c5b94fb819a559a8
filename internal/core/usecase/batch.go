package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

type BatchOptions struct {
	Cooldown        time.Duration
	IncludeMetadata bool
	Reporter        ports.ProgressReporter
	Observer        ports.AnalysisObserver
	Logger          *slog.Logger
}

// BatchOrchestrator analyzes documents one at a time in input order. A
// failure on one document never stops the batch.
type BatchOrchestrator struct {
	analyzer ports.DocumentAnalyzer
	opts     BatchOptions
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ ports.BatchRunner = (*BatchOrchestrator)(nil)

func NewBatchOrchestrator(analyzer ports.DocumentAnalyzer, opts BatchOptions) *BatchOrchestrator {
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BatchOrchestrator{
		analyzer: analyzer,
		opts:     opts,
		sleep:    sleepContext,
	}
}

func (o *BatchOrchestrator) RunBatch(
	ctx context.Context,
	docs []domain.DocumentRecord,
	mode domain.AnalysisMode,
	question string,
) domain.BatchResult {
	mode = domain.ParseMode(string(mode))
	result := domain.BatchResult{
		Mode:  mode,
		Items: make([]domain.BatchItem, 0, len(docs)),
	}
	total := len(docs)

	for i, doc := range docs {
		if ctx.Err() != nil {
			result.Items = append(result.Items, cancelledItems(docs[i:], mode)...)
			break
		}

		item := o.analyzeOne(ctx, doc, mode, question)
		result.Items = append(result.Items, item)
		o.opts.Logger.Info("batch_item_done",
			"document", doc.Name,
			"index", i+1,
			"total", total,
			"succeeded", item.Result.Succeeded,
			"error_kind", string(item.Result.ErrorKind),
		)
		if o.opts.Reporter != nil {
			o.opts.Reporter.ReportProgress(ctx, domain.BatchProgress{
				Completed: i + 1,
				Total:     total,
				Document:  doc.Name,
				Succeeded: item.Result.Succeeded,
			})
		}

		// Items rejected before reaching the provider spent no quota, so the
		// cool-down follows provider calls only and never the last document.
		if i < total-1 && item.Result.Attempts > 0 && o.opts.Cooldown > 0 {
			if err := o.sleep(ctx, o.opts.Cooldown); err != nil {
				result.Items = append(result.Items, cancelledItems(docs[i+1:], mode)...)
				break
			}
		}
	}

	if o.opts.Observer != nil {
		o.opts.Observer.ObserveBatch(total, result.Failed())
	}
	return result
}

func (o *BatchOrchestrator) analyzeOne(ctx context.Context, doc domain.DocumentRecord, mode domain.AnalysisMode, question string) domain.BatchItem {
	if !doc.HasText() {
		return domain.BatchItem{
			Name:   doc.Name,
			Result: domain.FailedResult(mode, domain.KindValidation, UserMessage(domain.KindValidation, "No text content available.")),
		}
	}
	if mode == domain.ModeCustom && strings.TrimSpace(question) == "" {
		return domain.BatchItem{
			Name:   doc.Name,
			Result: domain.FailedResult(mode, domain.KindValidation, UserMessage(domain.KindValidation, "Please enter a question for custom analysis.")),
		}
	}

	return domain.BatchItem{
		Name: doc.Name,
		Result: o.analyzer.Analyze(ctx, domain.AnalysisRequest{
			Mode:            mode,
			DocumentText:    doc.Text,
			UserQuestion:    question,
			IncludeMetadata: o.opts.IncludeMetadata,
		}),
	}
}

func cancelledItems(docs []domain.DocumentRecord, mode domain.AnalysisMode) []domain.BatchItem {
	items := make([]domain.BatchItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.BatchItem{
			Name:   doc.Name,
			Result: domain.FailedResult(mode, domain.KindUnknownProvider, "Batch cancelled before this document was analyzed."),
		})
	}
	return items
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
