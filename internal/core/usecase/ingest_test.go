package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

func newIngestor(parser *parserFake, limits IngestLimits) *IngestDocumentUseCase {
	return NewIngestDocumentUseCase(parser, limits, nil, nil)
}

func pdfBytes(n int) []byte {
	return bytes.Repeat([]byte("x"), n)
}

func TestIngestRejectsBadExtensionWithoutParsing(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{pages: []string{"text"}}}
	uc := newIngestor(parser, IngestLimits{})

	_, err := uc.Ingest(context.Background(), pdfBytes(2048), "notes.docx")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if parser.opened != 0 {
		t.Fatalf("parser must not be called on validation failure")
	}
}

func TestIngestRejectsSizeOutsideBounds(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{pages: []string{"text"}}}
	uc := newIngestor(parser, IngestLimits{MinSizeBytes: 100, MaxSizeBytes: 1000})

	if _, err := uc.Ingest(context.Background(), pdfBytes(99), "a.pdf"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for small file, got %v", err)
	}
	if _, err := uc.Ingest(context.Background(), pdfBytes(1001), "a.pdf"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for large file, got %v", err)
	}
	if parser.opened != 0 {
		t.Fatalf("parser must not be called on validation failure")
	}
}

func TestIngestExtensionIsCaseInsensitive(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{pages: []string{"hello"}}}
	uc := newIngestor(parser, IngestLimits{MinSizeBytes: 1})

	if _, err := uc.Ingest(context.Background(), pdfBytes(10), "REPORT.PDF"); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
}

func TestIngestParseErrors(t *testing.T) {
	cases := []struct {
		name   string
		parser *parserFake
	}{
		{"parser rejects", &parserFake{err: errors.New("not a PDF file")}},
		{"zero pages", &parserFake{doc: &pdfFake{}}},
		{"all pages fail", &parserFake{doc: &pdfFake{
			pages:    []string{"a", "b"},
			pageErrs: map[int]error{0: errBoom, 1: errBoom},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := newIngestor(tc.parser, IngestLimits{MinSizeBytes: 1}).Ingest(context.Background(), pdfBytes(10), "a.pdf")
			if !errors.Is(err, domain.ErrParse) {
				t.Fatalf("expected parse error, got %v", err)
			}
			if record != nil {
				t.Fatalf("expected no record on parse error")
			}
		})
	}
}

func TestIngestSkipsFailedPagesAndKeepsOrder(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{
		pages:    []string{"first", "broken", "third"},
		pageErrs: map[int]error{1: errBoom},
	}}
	record, err := newIngestor(parser, IngestLimits{MinSizeBytes: 1}).Ingest(context.Background(), pdfBytes(10), "a.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	want := "\n\n=== PAGE 1 ===\nfirst\n\n=== PAGE 3 ===\nthird"
	if record.Text != want {
		t.Fatalf("unexpected text %q", record.Text)
	}
	if record.PagesWithContent != 2 || record.ProcessedPages != 3 {
		t.Fatalf("unexpected page counts %+v", record)
	}
}

func TestIngestPageCapEnforced(t *testing.T) {
	pages := make([]string, 20)
	for i := range pages {
		pages[i] = fmt.Sprintf("page %d body", i+1)
	}
	parser := &parserFake{doc: &pdfFake{pages: pages}}

	record, err := newIngestor(parser, IngestLimits{MinSizeBytes: 1, PageCap: 5}).Ingest(context.Background(), pdfBytes(10), "a.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if record.TotalPages != 20 || record.ProcessedPages != 5 {
		t.Fatalf("expected 20 total / 5 processed, got %d / %d", record.TotalPages, record.ProcessedPages)
	}
	if strings.Contains(record.Text, "page 6 body") {
		t.Fatalf("page beyond cap was read")
	}
}

func TestIngestTruncationIsExactAndDeterministic(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{pages: []string{strings.Repeat("ä", 500)}}}
	uc := newIngestor(parser, IngestLimits{MinSizeBytes: 1, MaxTextChars: 100})

	first, err := uc.Ingest(context.Background(), pdfBytes(10), "a.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !first.Truncated {
		t.Fatalf("expected truncated record")
	}
	wantLen := 100 + utf8.RuneCountInString(truncationMarker)
	if first.TextLength != wantLen || utf8.RuneCountInString(first.Text) != wantLen {
		t.Fatalf("expected length %d, got %d", wantLen, first.TextLength)
	}
	if !strings.HasSuffix(first.Text, truncationMarker) {
		t.Fatalf("expected truncation marker suffix")
	}

	second, err := uc.Ingest(context.Background(), pdfBytes(10), "a.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if first.Text != second.Text || first.ContentHash != second.ContentHash {
		t.Fatalf("ingestion is not deterministic")
	}
}

func TestIngestBlankPagesYieldEmptyRecord(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{pages: []string{"   ", "\n\n"}}}
	record, err := newIngestor(parser, IngestLimits{MinSizeBytes: 1}).Ingest(context.Background(), pdfBytes(10), "scan.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if record.HasText() || record.WordCount != 0 || record.Truncated {
		t.Fatalf("expected empty record, got %+v", record)
	}
}

func TestIngestMetadataFailureIsNonFatal(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{pages: []string{"body"}, metaErr: errBoom}}
	record, err := newIngestor(parser, IngestLimits{MinSizeBytes: 1}).Ingest(context.Background(), pdfBytes(10), "a.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if record.Metadata != domain.UnknownDocumentMetadata() {
		t.Fatalf("expected unknown metadata, got %+v", record.Metadata)
	}
}

func TestIngestRecordFields(t *testing.T) {
	parser := &parserFake{doc: &pdfFake{
		pages: []string{"one two\x00three"},
		meta:  domain.DocumentMetadata{Title: "Report"},
	}}
	observer := &observerFake{}
	uc := NewIngestDocumentUseCase(parser, IngestLimits{MinSizeBytes: 1}, observer, nil)

	raw := pdfBytes(10)
	record, err := uc.Ingest(context.Background(), raw, "a.pdf")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(record.ContentHash) != 8 {
		t.Fatalf("expected 8 hex chars, got %q", record.ContentHash)
	}
	if record.RawSize != len(raw) {
		t.Fatalf("unexpected raw size %d", record.RawSize)
	}
	if record.WordCount != 7 {
		t.Fatalf("expected 7 words (marker included), got %d", record.WordCount)
	}
	if record.Metadata.Title != "Report" || record.Metadata.Author != domain.UnknownMetadata {
		t.Fatalf("unexpected metadata %+v", record.Metadata)
	}
	if record.ExtractedAt.IsZero() {
		t.Fatalf("expected extraction time")
	}
	if len(observer.ingests) != 1 || observer.ingests[0] != "ok" {
		t.Fatalf("unexpected ingest observations %v", observer.ingests)
	}
}
