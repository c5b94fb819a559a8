package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

type pdfFake struct {
	pages    []string
	pageErrs map[int]error
	meta     domain.DocumentMetadata
	metaErr  error
}

func (f *pdfFake) PageCount() int { return len(f.pages) }

func (f *pdfFake) PageText(index int) (string, error) {
	if err, ok := f.pageErrs[index]; ok {
		return "", err
	}
	return f.pages[index], nil
}

func (f *pdfFake) Metadata() (domain.DocumentMetadata, error) {
	return f.meta, f.metaErr
}

type parserFake struct {
	doc    *pdfFake
	err    error
	opened int
}

func (f *parserFake) Open([]byte) (ports.PDFDocument, error) {
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type generatorFake struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

// Generate pops the next queued error or response. When the queues are
// exhausted it repeats the last response.
func (f *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	out := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return out, nil
}

func (f *generatorFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// closingGeneratorFake is a generatorFake that holds a connection.
type closingGeneratorFake struct {
	*generatorFake
	closed int
}

func (f *closingGeneratorFake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *closingGeneratorFake) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func connectorFor(gen ports.TextGenerator, err error, connects *int) ports.ProviderConnector {
	return func(context.Context, string) (ports.TextGenerator, error) {
		if connects != nil {
			*connects++
		}
		if err != nil {
			return nil, err
		}
		return gen, nil
	}
}

type limiterFake struct {
	waits int
	last  time.Time
	err   error
}

func (f *limiterFake) Wait(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.waits++
	f.last = time.Unix(int64(f.waits), 0)
	return nil
}

func (f *limiterFake) LastRequestAt() time.Time { return f.last }

// retryExecutorFake retries up to attempts times while retryable says so.
type retryExecutorFake struct {
	attempts  int
	retryable func(error) bool
}

func (f *retryExecutorFake) Execute(ctx context.Context, _ string, fn func(context.Context) error) error {
	var err error
	for i := 0; i < f.attempts; i++ {
		err = fn(ctx)
		if err == nil || !f.retryable(err) {
			return err
		}
	}
	return err
}

type observerFake struct {
	ingests  []string
	analyses []domain.ErrorKind
	waits    int
	batches  [][2]int
}

func (f *observerFake) ObserveIngest(status string, _ int) { f.ingests = append(f.ingests, status) }
func (f *observerFake) ObserveAnalysis(_ domain.AnalysisMode, kind domain.ErrorKind, _ int, _ time.Duration) {
	f.analyses = append(f.analyses, kind)
}
func (f *observerFake) ObserveRateLimitWait(time.Duration) { f.waits++ }
func (f *observerFake) ObserveBatch(total, failed int)     { f.batches = append(f.batches, [2]int{total, failed}) }

type reporterFake struct {
	events []domain.BatchProgress
}

func (f *reporterFake) ReportProgress(_ context.Context, p domain.BatchProgress) {
	f.events = append(f.events, p)
}

type storeFake struct {
	mu       sync.Mutex
	next     int
	sessions map[string]*domain.Session
	err      error
}

func newStoreFake() *storeFake {
	return &storeFake{sessions: make(map[string]*domain.Session)}
}

func (f *storeFake) Create(context.Context) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	s := &domain.Session{ID: fmt.Sprintf("s%d", f.next), StartedAt: time.Unix(0, 0)}
	f.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (f *storeFake) Get(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	cp.Documents = append([]domain.DocumentRecord(nil), s.Documents...)
	cp.ChatHistory = append([]domain.ChatMessage(nil), s.ChatHistory...)
	return &cp, nil
}

func (f *storeFake) update(id string, fn func(*domain.Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	fn(s)
	return nil
}

func (f *storeFake) AppendDocuments(_ context.Context, id string, docs ...domain.DocumentRecord) error {
	return f.update(id, func(s *domain.Session) { s.Documents = append(s.Documents, docs...) })
}

func (f *storeFake) AppendChat(_ context.Context, id string, msgs ...domain.ChatMessage) error {
	return f.update(id, func(s *domain.Session) { s.ChatHistory = append(s.ChatHistory, msgs...) })
}

func (f *storeFake) AddAnalyses(_ context.Context, id string, n int) error {
	return f.update(id, func(s *domain.Session) { s.AnalysisCount += n })
}

func (f *storeFake) ClearChat(_ context.Context, id string) error {
	return f.update(id, func(s *domain.Session) { s.ChatHistory = nil })
}

func (f *storeFake) Clear(_ context.Context, id string) error {
	return f.update(id, func(s *domain.Session) {
		s.Documents = nil
		s.ChatHistory = nil
		s.AnalysisCount = 0
	})
}

func (f *storeFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(f.sessions, id)
	return nil
}

func readyClient(gen *generatorFake, limiter *limiterFake, opts AnalysisOptions) *AnalysisClient {
	return NewAnalysisClient(context.Background(), "test-key", connectorFor(gen, nil, nil), limiter, nil, opts)
}

func longText(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ipsum ", words))
}

var errBoom = errors.New("boom")
