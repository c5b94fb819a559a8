package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

type Upload struct {
	Name string
	Data []byte
}

// UploadOutcome is the per-file result of ProcessUploads. Record is nil when
// the file was rejected.
type UploadOutcome struct {
	Name      string                 `json:"name"`
	Record    *domain.DocumentRecord `json:"record,omitempty"`
	ErrorKind domain.ErrorKind       `json:"error_kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

type AnalyzerStatus struct {
	State          ClientState      `json:"state"`
	ErrorKind      domain.ErrorKind `json:"error_kind,omitempty"`
	Message        string           `json:"message,omitempty"`
	CredentialHint string           `json:"credential_hint,omitempty"`
}

// SessionUseCase owns session context and hands it to the core operations.
type SessionUseCase struct {
	store    ports.SessionStore
	ingestor ports.DocumentIngestor
	registry *AnalyzerRegistry
	chat     *ChatUseCase
	batch    BatchOptions
	logger   *slog.Logger
}

func NewSessionUseCase(
	store ports.SessionStore,
	ingestor ports.DocumentIngestor,
	registry *AnalyzerRegistry,
	batch BatchOptions,
	logger *slog.Logger,
) *SessionUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if batch.Logger == nil {
		batch.Logger = logger
	}
	return &SessionUseCase{
		store:    store,
		ingestor: ingestor,
		registry: registry,
		chat:     NewChatUseCase(store),
		batch:    batch,
		logger:   logger,
	}
}

// Start creates a session and binds an analysis client for credential.
func (uc *SessionUseCase) Start(ctx context.Context, credential string) (*domain.Session, AnalyzerStatus, error) {
	session, err := uc.store.Create(ctx)
	if err != nil {
		return nil, AnalyzerStatus{}, fmt.Errorf("create session: %w", err)
	}
	uc.registry.For(ctx, session.ID, credential)
	status, _ := uc.Status(ctx, session.ID)
	uc.logger.Info("session_started", "session_id", session.ID, "analyzer_state", string(status.State))
	return session, status, nil
}

// Reconfigure swaps the session's credential; the old client and its limiter
// are dropped.
func (uc *SessionUseCase) Reconfigure(ctx context.Context, sessionID, credential string) (AnalyzerStatus, error) {
	if _, err := uc.store.Get(ctx, sessionID); err != nil {
		return AnalyzerStatus{}, err
	}
	uc.registry.For(ctx, sessionID, credential)
	return uc.Status(ctx, sessionID)
}

func (uc *SessionUseCase) Status(ctx context.Context, sessionID string) (AnalyzerStatus, error) {
	client, hint, err := uc.analyzer(ctx, sessionID)
	if err != nil {
		return AnalyzerStatus{}, err
	}
	state, kind, message := client.Status()
	return AnalyzerStatus{State: state, ErrorKind: kind, Message: message, CredentialHint: hint}, nil
}

// ProcessUploads ingests every upload independently and appends the
// successful records to the session in upload order.
func (uc *SessionUseCase) ProcessUploads(ctx context.Context, sessionID string, uploads []Upload) ([]UploadOutcome, error) {
	if _, err := uc.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	outcomes := make([]UploadOutcome, 0, len(uploads))
	records := make([]domain.DocumentRecord, 0, len(uploads))
	for _, upload := range uploads {
		record, err := uc.ingestor.Ingest(ctx, upload.Data, upload.Name)
		if err != nil {
			kind := domain.KindOf(err)
			uc.logger.Warn("upload_rejected", "session_id", sessionID, "document", upload.Name, "kind", string(kind), "error", err)
			outcomes = append(outcomes, UploadOutcome{
				Name:      upload.Name,
				ErrorKind: kind,
				Error:     UserMessage(kind, err.Error()),
			})
			continue
		}
		records = append(records, *record)
		outcomes = append(outcomes, UploadOutcome{Name: upload.Name, Record: record})
	}

	if len(records) > 0 {
		if err := uc.store.AppendDocuments(ctx, sessionID, records...); err != nil {
			return outcomes, fmt.Errorf("store documents: %w", err)
		}
	}
	return outcomes, nil
}

// Analyze runs one analysis on a stored document. An empty documentName
// selects the first document.
func (uc *SessionUseCase) Analyze(
	ctx context.Context,
	sessionID, documentName string,
	mode domain.AnalysisMode,
	question string,
	includeMetadata bool,
) (domain.AnalysisResult, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	doc, err := pickDocument(session, documentName)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	client, _, err := uc.analyzer(ctx, sessionID)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result := client.Analyze(ctx, domain.AnalysisRequest{
		Mode:            mode,
		DocumentText:    doc.Text,
		UserQuestion:    question,
		IncludeMetadata: includeMetadata,
	})
	if err := uc.store.AddAnalyses(ctx, sessionID, 1); err != nil {
		return result, fmt.Errorf("count analysis: %w", err)
	}
	return result, nil
}

// RunBatch analyzes every document of the session in upload order.
func (uc *SessionUseCase) RunBatch(
	ctx context.Context,
	sessionID string,
	mode domain.AnalysisMode,
	question string,
	reporter ports.ProgressReporter,
) (domain.BatchResult, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return domain.BatchResult{}, err
	}
	if len(session.Documents) == 0 {
		return domain.BatchResult{}, domain.WrapError(domain.ErrValidation, "run batch", fmt.Errorf("no processed documents in session"))
	}
	client, _, err := uc.analyzer(ctx, sessionID)
	if err != nil {
		return domain.BatchResult{}, err
	}

	opts := uc.batch
	if reporter != nil {
		opts.Reporter = FanOutReporter{opts.Reporter, reporter}
	}
	result := NewBatchOrchestrator(client, opts).RunBatch(ctx, session.Documents, mode, question)
	if err := uc.store.AddAnalyses(ctx, sessionID, len(result.Items)); err != nil {
		return result, fmt.Errorf("count analyses: %w", err)
	}
	return result, nil
}

func (uc *SessionUseCase) Ask(ctx context.Context, sessionID, question, documentName string) (domain.ChatMessage, domain.AnalysisResult, error) {
	client, _, err := uc.analyzer(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, domain.AnalysisResult{}, err
	}
	return uc.chat.Ask(ctx, client, sessionID, question, documentName)
}

func (uc *SessionUseCase) SummarizeAll(ctx context.Context, sessionID string) (domain.ChatMessage, domain.AnalysisResult, error) {
	client, _, err := uc.analyzer(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, domain.AnalysisResult{}, err
	}
	return uc.chat.SummarizeAll(ctx, client, sessionID)
}

func (uc *SessionUseCase) Stats(ctx context.Context, sessionID string) (domain.SessionStats, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return domain.SessionStats{}, err
	}
	return session.Stats(), nil
}

func (uc *SessionUseCase) Documents(ctx context.Context, sessionID string) ([]domain.DocumentRecord, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Documents, nil
}

func (uc *SessionUseCase) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.ChatHistory, nil
}

func (uc *SessionUseCase) ClearChat(ctx context.Context, sessionID string) error {
	return uc.store.ClearChat(ctx, sessionID)
}

// Clear drops documents, chat history and the analysis counter. The analysis
// client and its pacing survive.
func (uc *SessionUseCase) Clear(ctx context.Context, sessionID string) error {
	return uc.store.Clear(ctx, sessionID)
}

func (uc *SessionUseCase) End(ctx context.Context, sessionID string) error {
	if err := uc.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	uc.registry.Forget(sessionID)
	uc.logger.Info("session_ended", "session_id", sessionID)
	return nil
}

func (uc *SessionUseCase) analyzer(ctx context.Context, sessionID string) (*AnalysisClient, string, error) {
	if _, err := uc.store.Get(ctx, sessionID); err != nil {
		return nil, "", err
	}
	client, hint, ok := uc.registry.Get(sessionID)
	if !ok {
		return nil, "", fmt.Errorf("analyzer for session %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	return client, hint, nil
}
