package domain

import "strings"

type AnalysisMode string

const (
	ModeSummary       AnalysisMode = "summary"
	ModeComprehensive AnalysisMode = "comprehensive"
	ModeInsights      AnalysisMode = "insights"
	ModeTechnical     AnalysisMode = "technical"
	ModeCustom        AnalysisMode = "custom"
)

// AnalysisModes lists the supported modes in display order.
var AnalysisModes = []AnalysisMode{
	ModeSummary,
	ModeComprehensive,
	ModeInsights,
	ModeTechnical,
	ModeCustom,
}

func (m AnalysisMode) Valid() bool {
	for _, known := range AnalysisModes {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMode normalizes user input. Unknown values map to ModeSummary.
func ParseMode(raw string) AnalysisMode {
	mode := AnalysisMode(strings.ToLower(strings.TrimSpace(raw)))
	if !mode.Valid() {
		return ModeSummary
	}
	return mode
}

type AnalysisRequest struct {
	Mode            AnalysisMode `json:"mode"`
	DocumentText    string       `json:"document_text"`
	UserQuestion    string       `json:"user_question,omitempty"`
	IncludeMetadata bool         `json:"include_metadata"`
}

// AnalysisResult always carries displayable Text, including on failure.
type AnalysisResult struct {
	Text      string       `json:"text"`
	Succeeded bool         `json:"succeeded"`
	ErrorKind ErrorKind    `json:"error_kind,omitempty"`
	Mode      AnalysisMode `json:"mode"`
	Attempts  int          `json:"attempts"`
}

func FailedResult(mode AnalysisMode, kind ErrorKind, message string) AnalysisResult {
	return AnalysisResult{
		Text:      message,
		Succeeded: false,
		ErrorKind: kind,
		Mode:      mode,
	}
}

type BatchItem struct {
	Name   string         `json:"name"`
	Result AnalysisResult `json:"result"`
}

type BatchResult struct {
	Mode  AnalysisMode `json:"mode"`
	Items []BatchItem  `json:"items"`
}

// ByName returns the name → result mapping. A later duplicate name wins.
func (b BatchResult) ByName() map[string]AnalysisResult {
	out := make(map[string]AnalysisResult, len(b.Items))
	for _, item := range b.Items {
		out[item.Name] = item.Result
	}
	return out
}

func (b BatchResult) Succeeded() int {
	n := 0
	for _, item := range b.Items {
		if item.Result.Succeeded {
			n++
		}
	}
	return n
}

func (b BatchResult) Failed() int {
	return len(b.Items) - b.Succeeded()
}

type BatchProgress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Document  string `json:"document"`
	Succeeded bool   `json:"succeeded"`
}
