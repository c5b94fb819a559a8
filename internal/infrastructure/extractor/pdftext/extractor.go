package pdftext

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

// Extractor opens PDFs from memory. Page text comes from ledongthuc/pdf,
// document info from pdfcpu (see info.go).
type Extractor struct{}

func NewExtractor() *Extractor {
	disablePdfcpuConfigDir()
	return &Extractor{}
}

var _ ports.PDFParser = (*Extractor)(nil)

func (e *Extractor) Open(raw []byte) (doc ports.PDFDocument, err error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("open pdf: empty input")
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("open pdf: malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &document{raw: raw, reader: reader, pages: reader.NumPage()}, nil
}

type document struct {
	raw    []byte
	reader *pdf.Reader
	pages  int
}

func (d *document) PageCount() int {
	return d.pages
}

// PageText returns the plain text of the zero-based page index.
func (d *document) PageText(index int) (text string, err error) {
	if index < 0 || index >= d.pages {
		return "", fmt.Errorf("page %d out of range (pages: %d)", index+1, d.pages)
	}
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("extract page %d: %v", index+1, r)
		}
	}()

	page := d.reader.Page(index + 1)
	if page.V.IsNull() {
		return "", fmt.Errorf("extract page %d: page object missing", index+1)
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d: %w", index+1, err)
	}
	return text, nil
}

func (d *document) Metadata() (domain.DocumentMetadata, error) {
	meta, err := readInfo(d.raw)
	if err == nil && meta != (domain.DocumentMetadata{}) {
		return meta.WithDefaults(), nil
	}

	fallback, fallbackErr := d.trailerInfo()
	if fallbackErr != nil {
		if err != nil {
			return domain.UnknownDocumentMetadata(), fmt.Errorf("read document info: %w", err)
		}
		return domain.UnknownDocumentMetadata(), fallbackErr
	}
	return fallback.WithDefaults(), nil
}

func (d *document) trailerInfo() (meta domain.DocumentMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read trailer info: %v", r)
		}
	}()

	info := d.reader.Trailer().Key("Info")
	if info.IsNull() {
		return domain.DocumentMetadata{}, nil
	}
	return domain.DocumentMetadata{
		Title:        info.Key("Title").Text(),
		Author:       info.Key("Author").Text(),
		Subject:      info.Key("Subject").Text(),
		Creator:      info.Key("Creator").Text(),
		CreationDate: info.Key("CreationDate").Text(),
	}, nil
}
