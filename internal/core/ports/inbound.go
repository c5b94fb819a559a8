package ports

import (
	"context"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

// DocumentIngestor turns uploaded bytes into a DocumentRecord.
type DocumentIngestor interface {
	Ingest(ctx context.Context, raw []byte, name string) (*domain.DocumentRecord, error)
}

// DocumentAnalyzer runs a single analysis. It never returns an error; failures
// are encoded in the result.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult
}

// BatchRunner analyzes documents sequentially.
type BatchRunner interface {
	RunBatch(ctx context.Context, docs []domain.DocumentRecord, mode domain.AnalysisMode, question string) domain.BatchResult
}
