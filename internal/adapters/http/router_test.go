package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
	"github.com/kirillkom/smartdoc-agent/internal/core/usecase"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/extractor/pdftext/pdftest"
	"github.com/kirillkom/smartdoc-agent/internal/infrastructure/session/memory"
)

// generatorFake answers the connection probe and fails analysis prompts
// with err when set.
type generatorFake struct {
	mu  sync.Mutex
	err error
}

func (g *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if strings.HasPrefix(prompt, "Hello, respond with") {
		return "API working", nil
	}
	if g.err != nil {
		return "", g.err
	}
	return "Generated analysis.", nil
}

type exporterFake struct{}

func (exporterFake) ContentType() string { return "application/test-xlsx" }

func (exporterFake) WriteBatch(w io.Writer, result domain.BatchResult) error {
	_, err := fmt.Fprintf(w, "rows=%d", len(result.Items))
	return err
}

func newTestHandler(gen *generatorFake, opts Options) http.Handler {
	connect := func(context.Context, string) (ports.TextGenerator, error) { return gen, nil }
	factory := usecase.NewAnalyzerFactory(connect, nil, nil, usecase.AnalysisOptions{})
	ingestor := usecase.NewIngestDocumentUseCase(pdftext.NewExtractor(), usecase.IngestLimits{MinSizeBytes: 1}, nil, nil)
	sessions := usecase.NewSessionUseCase(memory.NewSessionStore(), ingestor, usecase.NewAnalyzerRegistry(factory), usecase.BatchOptions{}, nil)
	if opts.Exporter == nil {
		opts.Exporter = exporterFake{}
	}
	return NewRouter(sessions, opts).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-key")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func decode[T any](t *testing.T, res *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(res.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return out
}

func startSession(t *testing.T, h http.Handler) string {
	t.Helper()
	res := doJSON(t, h, http.MethodPost, "/v1/sessions", nil)
	if res.Code != http.StatusCreated {
		t.Fatalf("start session expected 201, got %d: %s", res.Code, res.Body.String())
	}
	session := decode[sessionResponse](t, res)
	if session.Analyzer.State != usecase.StateReady {
		t.Fatalf("expected ready analyzer, got %+v", session.Analyzer)
	}
	return session.ID
}

func upload(t *testing.T, h http.Handler, sessionID string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+sessionID+"/documents", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpointSetsRequestID(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestListModesFallsBackToBuiltInModes(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	res := doJSON(t, handler, http.MethodGet, "/v1/modes", nil)
	body := decode[map[string][]map[string]string](t, res)
	if len(body["modes"]) != len(domain.AnalysisModes) {
		t.Fatalf("unexpected modes %v", body)
	}
}

func TestSessionWorkflow(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	id := startSession(t, handler)

	pdf := pdftest.Build("Report", "Quarterly revenue grew by ten percent across all regions.")
	res := upload(t, handler, id, map[string][]byte{"report.pdf": pdf})
	if res.Code != http.StatusOK {
		t.Fatalf("upload expected 200, got %d: %s", res.Code, res.Body.String())
	}
	outcomes := decode[map[string][]usecase.UploadOutcome](t, res)["files"]
	if len(outcomes) != 1 || outcomes[0].Record == nil || outcomes[0].Record.ProcessedPages != 1 {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/analyze", map[string]any{"mode": "insights", "include_metadata": false})
	if res.Code != http.StatusOK {
		t.Fatalf("analyze expected 200, got %d: %s", res.Code, res.Body.String())
	}
	result := decode[domain.AnalysisResult](t, res)
	if !result.Succeeded || result.Text != "Generated analysis." || result.Mode != domain.ModeInsights {
		t.Fatalf("unexpected analysis %+v", result)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/batch", map[string]any{"mode": "summary"})
	if res.Code != http.StatusOK {
		t.Fatalf("batch expected 200, got %d", res.Code)
	}
	if batch := decode[batchResponse](t, res); batch.Succeeded != 1 || len(batch.Items) != 1 {
		t.Fatalf("unexpected batch %+v", batch)
	}

	res = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/chat", map[string]any{"question": "What grew?"})
	if res.Code != http.StatusOK {
		t.Fatalf("chat expected 200, got %d", res.Code)
	}
	if reply := decode[chatResponse](t, res); reply.Message.Role != domain.RoleAssistant {
		t.Fatalf("unexpected reply %+v", reply)
	}

	res = doJSON(t, handler, http.MethodGet, "/v1/sessions/"+id, nil)
	stats := decode[domain.SessionStats](t, res)
	if stats.Files != 1 || stats.Analyses != 3 || stats.ChatMessages != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	res = doJSON(t, handler, http.MethodDelete, "/v1/sessions/"+id+"/chat", nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("clear chat expected 204, got %d", res.Code)
	}
	history := decode[map[string][]domain.ChatMessage](t, doJSON(t, handler, http.MethodGet, "/v1/sessions/"+id+"/chat", nil))
	if len(history["messages"]) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}

	res = doJSON(t, handler, http.MethodDelete, "/v1/sessions/"+id, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("end session expected 204, got %d", res.Code)
	}
	res = doJSON(t, handler, http.MethodGet, "/v1/sessions/"+id, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after end, got %d", res.Code)
	}
}

func TestBatchExportsWorkbook(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	id := startSession(t, handler)
	upload(t, handler, id, map[string][]byte{"a.pdf": pdftest.Build("", "Alpha document body with enough words.")})

	res := doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/batch?format=xlsx", map[string]any{"mode": "summary"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get("Content-Type") != "application/test-xlsx" {
		t.Fatalf("unexpected content type %q", res.Header().Get("Content-Type"))
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), "batch-summary.xlsx") {
		t.Fatalf("unexpected disposition %q", res.Header().Get("Content-Disposition"))
	}
	if res.Body.String() != "rows=1" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}
}

func TestUploadReportsRejectedFiles(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	id := startSession(t, handler)

	res := upload(t, handler, id, map[string][]byte{"notes.txt": []byte("plain text")})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	outcomes := decode[map[string][]usecase.UploadOutcome](t, res)["files"]
	if len(outcomes) != 1 || outcomes[0].ErrorKind != domain.KindValidation || outcomes[0].Error == "" {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
}

func TestAnalyzeMapsProviderQuotaTo429(t *testing.T) {
	gen := &generatorFake{}
	handler := newTestHandler(gen, Options{})
	id := startSession(t, handler)
	upload(t, handler, id, map[string][]byte{"a.pdf": pdftest.Build("", "Alpha document body with enough words.")})

	gen.mu.Lock()
	gen.err = errors.New("googleapi: Error 429: Quota exceeded for quota metric")
	gen.mu.Unlock()

	res := doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/analyze", map[string]any{"mode": "summary"})
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", res.Code, res.Body.String())
	}
	if result := decode[domain.AnalysisResult](t, res); result.ErrorKind != domain.KindQuotaExceeded {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAnalyzeWithoutDocumentsIsBadRequest(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	id := startSession(t, handler)

	res := doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/analyze", map[string]any{"mode": "summary"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decode[errorResponse](t, res); body.Kind != domain.KindValidation {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/sessions/missing"},
		{http.MethodGet, "/v1/sessions/missing/status"},
		{http.MethodPost, "/v1/sessions/missing/chat/summary"},
		{http.MethodDelete, "/v1/sessions/missing"},
	} {
		res := doJSON(t, handler, tc.method, tc.path, nil)
		if res.Code != http.StatusNotFound {
			t.Fatalf("%s %s expected 404, got %d", tc.method, tc.path, res.Code)
		}
	}
}

func TestStartWithoutCredentialReportsFailedAnalyzer(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{})
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Code)
	}
	if session := decode[sessionResponse](t, res); session.Analyzer.State != usecase.StateFailed || session.Analyzer.ErrorKind != domain.KindCredential {
		t.Fatalf("unexpected analyzer %+v", session.Analyzer)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrValidation, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrParse, "op", errors.New("x")), http.StatusUnprocessableEntity},
		{domain.WrapError(domain.ErrCredential, "op", errors.New("x")), http.StatusUnauthorized},
		{domain.WrapError(domain.ErrPermission, "op", errors.New("x")), http.StatusForbidden},
		{domain.WrapError(domain.ErrResourceExhausted, "op", errors.New("x")), http.StatusTooManyRequests},
		{fmt.Errorf("get: %w", domain.ErrSessionNotFound), http.StatusNotFound},
		{fmt.Errorf("pick: %w", domain.ErrDocumentNotFound), http.StatusNotFound},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestHandler(&generatorFake{}, Options{RateLimitRPS: 1, RateLimitBurst: 1})

	res1 := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}
	res2 := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		done <- res.Code
	}()

	<-started

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}
