package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/config"
	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
	"github.com/kirillkom/smartdoc-agent/internal/core/usecase"
)

var errRequestTooLarge = errors.New("request body too large")

// SessionService is the session surface the router drives.
type SessionService interface {
	Start(ctx context.Context, credential string) (*domain.Session, usecase.AnalyzerStatus, error)
	Reconfigure(ctx context.Context, sessionID, credential string) (usecase.AnalyzerStatus, error)
	Status(ctx context.Context, sessionID string) (usecase.AnalyzerStatus, error)
	ProcessUploads(ctx context.Context, sessionID string, uploads []usecase.Upload) ([]usecase.UploadOutcome, error)
	Analyze(ctx context.Context, sessionID, documentName string, mode domain.AnalysisMode, question string, includeMetadata bool) (domain.AnalysisResult, error)
	RunBatch(ctx context.Context, sessionID string, mode domain.AnalysisMode, question string, reporter ports.ProgressReporter) (domain.BatchResult, error)
	Ask(ctx context.Context, sessionID, question, documentName string) (domain.ChatMessage, domain.AnalysisResult, error)
	SummarizeAll(ctx context.Context, sessionID string) (domain.ChatMessage, domain.AnalysisResult, error)
	Stats(ctx context.Context, sessionID string) (domain.SessionStats, error)
	Documents(ctx context.Context, sessionID string) ([]domain.DocumentRecord, error)
	History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	ClearChat(ctx context.Context, sessionID string) error
	Clear(ctx context.Context, sessionID string) error
	End(ctx context.Context, sessionID string) error
}

// BatchExporter renders a batch result as a downloadable file.
type BatchExporter interface {
	ContentType() string
	WriteBatch(w io.Writer, result domain.BatchResult) error
}

type Options struct {
	DefaultCredential string
	IncludeMetadata   bool
	MaxUploadBytes    int64
	MaxRequestBytes   int64

	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration

	Catalog        config.Catalog
	Exporter       BatchExporter
	MetricsHandler http.Handler
	Middleware     func(http.Handler) http.Handler
	UploadObserver func(size int)
	Logger         *slog.Logger
}

type Router struct {
	sessions SessionService
	opts     Options
	logger   *slog.Logger
}

func NewRouter(sessions SessionService, opts Options) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = 8 * opts.MaxUploadBytes
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = 100 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sessions: sessions, opts: opts, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", rt.opts.MetricsHandler)
	}
	mux.HandleFunc("GET /v1/modes", rt.listModes)

	mux.HandleFunc("POST /v1/sessions", rt.startSession)
	mux.HandleFunc("GET /v1/sessions/{id}", rt.sessionStats)
	mux.HandleFunc("DELETE /v1/sessions/{id}", rt.endSession)
	mux.HandleFunc("GET /v1/sessions/{id}/status", rt.sessionStatus)
	mux.HandleFunc("PUT /v1/sessions/{id}/credential", rt.reconfigure)
	mux.HandleFunc("POST /v1/sessions/{id}/clear", rt.clearSession)

	mux.HandleFunc("POST /v1/sessions/{id}/documents", rt.uploadDocuments)
	mux.HandleFunc("GET /v1/sessions/{id}/documents", rt.listDocuments)
	mux.HandleFunc("POST /v1/sessions/{id}/analyze", rt.analyze)
	mux.HandleFunc("POST /v1/sessions/{id}/batch", rt.batch)

	mux.HandleFunc("POST /v1/sessions/{id}/chat", rt.ask)
	mux.HandleFunc("GET /v1/sessions/{id}/chat", rt.history)
	mux.HandleFunc("DELETE /v1/sessions/{id}/chat", rt.clearChat)
	mux.HandleFunc("POST /v1/sessions/{id}/chat/summary", rt.summarize)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.opts.Middleware != nil {
		handler = rt.opts.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listModes(w http.ResponseWriter, _ *http.Request) {
	modes := rt.opts.Catalog.Modes
	if len(modes) == 0 {
		modes = make([]config.ModeSpec, 0, len(domain.AnalysisModes))
		for _, mode := range domain.AnalysisModes {
			modes = append(modes, config.ModeSpec{ID: string(mode), Label: string(mode)})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modes": modes})
}

type sessionResponse struct {
	ID        string                 `json:"id"`
	StartedAt time.Time              `json:"started_at"`
	Analyzer  usecase.AnalyzerStatus `json:"analyzer"`
}

func (rt *Router) startSession(w http.ResponseWriter, r *http.Request) {
	session, status, err := rt.sessions.Start(r.Context(), rt.credential(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: session.ID, StartedAt: session.StartedAt, Analyzer: status})
}

func (rt *Router) sessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.sessions.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) sessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := rt.sessions.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) reconfigure(w http.ResponseWriter, r *http.Request) {
	status, err := rt.sessions.Reconfigure(r.Context(), r.PathValue("id"), rt.credential(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.End(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) clearSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.Clear(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxRequestBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, errRequestTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart form with field 'files' is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	headers = append(headers, r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart field 'files' is required"})
		return
	}

	uploads := make([]usecase.Upload, 0, len(headers))
	for _, header := range headers {
		data, err := rt.readPart(header)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		if rt.opts.UploadObserver != nil {
			rt.opts.UploadObserver(len(data))
		}
		uploads = append(uploads, usecase.Upload{Name: header.Filename, Data: data})
	}

	outcomes, err := rt.sessions.ProcessUploads(r.Context(), r.PathValue("id"), uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": outcomes})
}

// readPart reads at most one byte past the upload limit so the ingestor can
// still report the file as oversized.
func (rt *Router) readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", header.Filename, err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, rt.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", header.Filename, err)
	}
	return data, nil
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := rt.sessions.Documents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	summaries := make([]documentSummary, 0, len(docs))
	for _, doc := range docs {
		summaries = append(summaries, summarizeDocument(doc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": summaries})
}

// documentSummary is a DocumentRecord without its extracted text.
type documentSummary struct {
	Name             string                  `json:"name"`
	RawSize          int                     `json:"raw_size"`
	ContentHash      string                  `json:"content_hash"`
	TotalPages       int                     `json:"total_pages"`
	ProcessedPages   int                     `json:"processed_pages"`
	PagesWithContent int                     `json:"pages_with_content"`
	WordCount        int                     `json:"word_count"`
	TextLength       int                     `json:"text_length"`
	Truncated        bool                    `json:"truncated"`
	Metadata         domain.DocumentMetadata `json:"metadata"`
}

func summarizeDocument(doc domain.DocumentRecord) documentSummary {
	return documentSummary{
		Name:             doc.Name,
		RawSize:          doc.RawSize,
		ContentHash:      doc.ContentHash,
		TotalPages:       doc.TotalPages,
		ProcessedPages:   doc.ProcessedPages,
		PagesWithContent: doc.PagesWithContent,
		WordCount:        doc.WordCount,
		TextLength:       doc.TextLength,
		Truncated:        doc.Truncated,
		Metadata:         doc.Metadata,
	}
}

type analyzeRequest struct {
	Document        string `json:"document"`
	Mode            string `json:"mode"`
	Question        string `json:"question"`
	IncludeMetadata *bool  `json:"include_metadata"`
}

func (rt *Router) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	include := rt.opts.IncludeMetadata
	if req.IncludeMetadata != nil {
		include = *req.IncludeMetadata
	}

	result, err := rt.sessions.Analyze(r.Context(), r.PathValue("id"), req.Document, domain.ParseMode(req.Mode), req.Question, include)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, mapKindToHTTPStatus(result.ErrorKind), result)
}

type batchRequest struct {
	Mode     string `json:"mode"`
	Question string `json:"question"`
}

type batchResponse struct {
	domain.BatchResult
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (rt *Router) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wantXLSX := strings.EqualFold(r.URL.Query().Get("format"), "xlsx")
	if wantXLSX && rt.opts.Exporter == nil {
		writeJSON(w, http.StatusNotAcceptable, errorResponse{Error: "xlsx export is not available"})
		return
	}

	id := r.PathValue("id")
	result, err := rt.sessions.RunBatch(r.Context(), id, domain.ParseMode(req.Mode), req.Question, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	if wantXLSX {
		w.Header().Set("Content-Type", rt.opts.Exporter.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch-"+string(result.Mode)+".xlsx"))
		w.WriteHeader(http.StatusOK)
		if err := rt.opts.Exporter.WriteBatch(w, result); err != nil {
			rt.logger.Error("batch_export_failed", "session_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{BatchResult: result, Succeeded: result.Succeeded(), Failed: result.Failed()})
}

type chatRequest struct {
	Question string `json:"question"`
	Document string `json:"document"`
}

type chatResponse struct {
	Message domain.ChatMessage    `json:"message"`
	Result  domain.AnalysisResult `json:"result"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, result, err := rt.sessions.Ask(r.Context(), r.PathValue("id"), req.Question, req.Document)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, mapKindToHTTPStatus(result.ErrorKind), chatResponse{Message: msg, Result: result})
}

func (rt *Router) summarize(w http.ResponseWriter, r *http.Request) {
	msg, result, err := rt.sessions.SummarizeAll(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, mapKindToHTTPStatus(result.ErrorKind), chatResponse{Message: msg, Result: result})
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request) {
	history, err := rt.sessions.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": history})
}

func (rt *Router) clearChat(w http.ResponseWriter, r *http.Request) {
	if err := rt.sessions.ClearChat(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// credential prefers a bearer token and falls back to the configured key.
func (rt *Router) credential(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(header, bearerPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)); token != "" {
			return token
		}
	}
	return rt.opts.DefaultCredential
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
