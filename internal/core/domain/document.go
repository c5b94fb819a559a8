package domain

import "time"

// UnknownMetadata is the placeholder for document info fields the parser
// could not provide.
const UnknownMetadata = "Unknown"

type DocumentMetadata struct {
	Title        string `json:"title"`
	Author       string `json:"author"`
	Subject      string `json:"subject"`
	Creator      string `json:"creator"`
	CreationDate string `json:"creation_date"`
}

// UnknownDocumentMetadata returns metadata with every field set to UnknownMetadata.
func UnknownDocumentMetadata() DocumentMetadata {
	return DocumentMetadata{
		Title:        UnknownMetadata,
		Author:       UnknownMetadata,
		Subject:      UnknownMetadata,
		Creator:      UnknownMetadata,
		CreationDate: UnknownMetadata,
	}
}

// WithDefaults fills empty fields with UnknownMetadata.
func (m DocumentMetadata) WithDefaults() DocumentMetadata {
	fill := func(v string) string {
		if v == "" {
			return UnknownMetadata
		}
		return v
	}
	return DocumentMetadata{
		Title:        fill(m.Title),
		Author:       fill(m.Author),
		Subject:      fill(m.Subject),
		Creator:      fill(m.Creator),
		CreationDate: fill(m.CreationDate),
	}
}

// DocumentRecord is one ingested file. It is built once by the ingestor and
// never mutated afterwards.
type DocumentRecord struct {
	Name             string           `json:"name"`
	RawSize          int              `json:"raw_size"`
	ContentHash      string           `json:"content_hash"`
	TotalPages       int              `json:"total_pages"`
	ProcessedPages   int              `json:"processed_pages"`
	PagesWithContent int              `json:"pages_with_content"`
	Text             string           `json:"text"`
	WordCount        int              `json:"word_count"`
	TextLength       int              `json:"text_length"`
	Truncated        bool             `json:"truncated"`
	Metadata         DocumentMetadata `json:"metadata"`
	ExtractedAt      time.Time        `json:"extracted_at"`
}

// HasText reports whether the record carries any analyzable content.
func (d DocumentRecord) HasText() bool {
	return d.Text != ""
}
