package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

const (
	pageMarkerFormat = "\n\n=== PAGE %d ===\n"
	truncationMarker = "\n\n[Content truncated for API optimization...]"
)

type IngestLimits struct {
	AllowedExtensions []string
	MinSizeBytes      int
	MaxSizeBytes      int
	PageCap           int
	MaxTextChars      int
}

type IngestDocumentUseCase struct {
	parser   ports.PDFParser
	limits   IngestLimits
	observer ports.AnalysisObserver
	logger   *slog.Logger
	now      func() time.Time
}

func NewIngestDocumentUseCase(
	parser ports.PDFParser,
	limits IngestLimits,
	observer ports.AnalysisObserver,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if len(limits.AllowedExtensions) == 0 {
		limits.AllowedExtensions = []string{".pdf"}
	}
	if limits.MinSizeBytes <= 0 {
		limits.MinSizeBytes = 1024
	}
	if limits.MaxSizeBytes <= 0 {
		limits.MaxSizeBytes = 10 * 1024 * 1024
	}
	if limits.PageCap <= 0 {
		limits.PageCap = 5
	}
	if limits.MaxTextChars <= 0 {
		limits.MaxTextChars = 12000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &IngestDocumentUseCase{
		parser:   parser,
		limits:   limits,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest validates, parses and normalizes one uploaded PDF. Validation
// failures never reach the parser; a ParseError never yields a record.
func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, raw []byte, name string) (*domain.DocumentRecord, error) {
	if err := uc.validate(raw, name); err != nil {
		uc.observe("rejected", 0)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := uc.extract(raw, name)
	if err != nil {
		uc.observe("parse_failed", 0)
		return nil, err
	}

	uc.observe("ok", record.ProcessedPages)
	return record, nil
}

func (uc *IngestDocumentUseCase) validate(raw []byte, name string) error {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	allowed := false
	for _, candidate := range uc.limits.AllowedExtensions {
		if ext == candidate {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.WrapError(domain.ErrValidation, "ingest",
			fmt.Errorf("file type %q not allowed (allowed: %s)", ext, strings.Join(uc.limits.AllowedExtensions, ", ")))
	}

	size := len(raw)
	if size < uc.limits.MinSizeBytes {
		return domain.WrapError(domain.ErrValidation, "ingest",
			fmt.Errorf("file too small: %d bytes (minimum %d)", size, uc.limits.MinSizeBytes))
	}
	if size > uc.limits.MaxSizeBytes {
		return domain.WrapError(domain.ErrValidation, "ingest",
			fmt.Errorf("file too large: %.1f MB (maximum %.1f MB)", megabytes(size), megabytes(uc.limits.MaxSizeBytes)))
	}
	return nil
}

func (uc *IngestDocumentUseCase) extract(raw []byte, name string) (*domain.DocumentRecord, error) {
	doc, err := uc.parser.Open(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrParse, "ingest", err)
	}

	totalPages := doc.PageCount()
	if totalPages <= 0 {
		return nil, domain.WrapError(domain.ErrParse, "ingest", fmt.Errorf("document has no pages"))
	}

	metadata, err := doc.Metadata()
	if err != nil {
		uc.logger.Warn("metadata_extract_failed", "document", name, "error", err)
		metadata = domain.UnknownDocumentMetadata()
	} else {
		metadata = metadata.WithDefaults()
	}

	processed := min(totalPages, uc.limits.PageCap)
	var (
		builder     strings.Builder
		withContent int
		failed      int
	)
	for i := 0; i < processed; i++ {
		pageText, err := doc.PageText(i)
		if err != nil {
			failed++
			uc.logger.Warn("page_extract_failed", "document", name, "page", i+1, "error", err)
			continue
		}
		pageText = normalizePageText(pageText)
		if pageText == "" {
			continue
		}
		withContent++
		fmt.Fprintf(&builder, pageMarkerFormat, i+1)
		builder.WriteString(pageText)
	}
	if failed == processed {
		return nil, domain.WrapError(domain.ErrParse, "ingest",
			fmt.Errorf("text extraction failed on all %d processed pages", processed))
	}

	text, truncated := truncateRunes(builder.String(), uc.limits.MaxTextChars)

	return &domain.DocumentRecord{
		Name:             name,
		RawSize:          len(raw),
		ContentHash:      contentHash(raw),
		TotalPages:       totalPages,
		ProcessedPages:   processed,
		PagesWithContent: withContent,
		Text:             text,
		WordCount:        len(strings.Fields(text)),
		TextLength:       utf8.RuneCountInString(text),
		Truncated:        truncated,
		Metadata:         metadata,
		ExtractedAt:      uc.now().UTC(),
	}, nil
}

func (uc *IngestDocumentUseCase) observe(status string, pages int) {
	if uc.observer != nil {
		uc.observer.ObserveIngest(status, pages)
	}
}

// contentHash is the first 8 hex characters of the xxhash64 digest.
func contentHash(raw []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(raw))[:8]
}

// truncateRunes cuts text to limit runes and appends the truncation marker.
func truncateRunes(text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	cut, truncated := cutRunes(text, limit)
	if !truncated {
		return text, false
	}
	return cut + truncationMarker, true
}

var blankLineRuns = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)

func normalizePageText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func megabytes(n int) float64 {
	return float64(n) / (1024 * 1024)
}
