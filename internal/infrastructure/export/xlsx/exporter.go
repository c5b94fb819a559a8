package xlsx

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"

	// Excel rejects cell values above this many characters.
	maxCellChars = 32767
)

var resultHeader = []any{"Document", "Mode", "Succeeded", "Error kind", "Attempts", "Analysis"}

// Exporter renders batch results as an .xlsx workbook.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

// ContentType is the MIME type of the produced workbook.
func (e *Exporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *Exporter) WriteBatch(w io.Writer, result domain.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, item := range result.Items {
		row := []any{
			item.Name,
			string(item.Result.Mode),
			item.Result.Succeeded,
			string(item.Result.ErrorKind),
			item.Result.Attempts,
			clipCell(item.Result.Text),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if err := f.SetColWidth(resultsSheet, "A", "A", 32); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := f.SetColWidth(resultsSheet, "F", "F", 100); err != nil {
		return fmt.Errorf("column width: %w", err)
	}
	if err := writeSummary(f, result); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Bytes is WriteBatch into a buffer.
func (e *Exporter) Bytes(result domain.BatchResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.WriteBatch(&buf, result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, result domain.BatchResult) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]any{
		{"Mode", string(result.Mode)},
		{"Documents", len(result.Items)},
		{"Succeeded", result.Succeeded()},
		{"Failed", result.Failed()},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(summarySheet, "A"+strconv.Itoa(i+1), &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

func clipCell(text string) string {
	clipped, _ := cutText(text, maxCellChars)
	return clipped
}

func cutText(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]), true
}
