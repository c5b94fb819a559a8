package ports

import (
	"context"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

// PDFDocument is an opened PDF. Page indexes are zero-based.
type PDFDocument interface {
	PageCount() int
	PageText(index int) (string, error)
	Metadata() (domain.DocumentMetadata, error)
}

// PDFParser opens raw PDF bytes.
type PDFParser interface {
	Open(raw []byte) (PDFDocument, error)
}

// TextGenerator sends one prompt to the hosted model and returns its text.
// Implementations holding a connection also implement io.Closer.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderConnector builds a TextGenerator bound to one credential.
type ProviderConnector func(ctx context.Context, credential string) (TextGenerator, error)

// RateLimiter spaces outbound provider calls.
type RateLimiter interface {
	Wait(ctx context.Context) error
	LastRequestAt() time.Time
}

// RateLimiterFactory builds an independent limiter for each analysis client.
type RateLimiterFactory func() RateLimiter

// SessionStore holds session state for the lifetime of a user session.
// Implementations return copies; callers never share slices with the store.
type SessionStore interface {
	Create(ctx context.Context) (*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	AppendDocuments(ctx context.Context, id string, docs ...domain.DocumentRecord) error
	AppendChat(ctx context.Context, id string, messages ...domain.ChatMessage) error
	AddAnalyses(ctx context.Context, id string, n int) error
	ClearChat(ctx context.Context, id string) error
	Clear(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// ProgressReporter receives batch progress. It is a side channel: reporters
// must not block the batch for long and their failures are ignored.
type ProgressReporter interface {
	ReportProgress(ctx context.Context, progress domain.BatchProgress)
}

// AnalysisObserver records analysis outcomes for metrics.
type AnalysisObserver interface {
	ObserveIngest(status string, processedPages int)
	ObserveAnalysis(mode domain.AnalysisMode, kind domain.ErrorKind, attempts int, duration time.Duration)
	ObserveRateLimitWait(wait time.Duration)
	ObserveBatch(total, failed int)
}

// CallExecutor runs fn under the retry and circuit-breaker policy. fn is
// invoked once per attempt.
type CallExecutor interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error) error
}

// CallExecutorFactory builds an executor whose failure state belongs to one
// analysis client.
type CallExecutorFactory func() CallExecutor
