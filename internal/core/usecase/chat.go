package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

const (
	documentSeparator   = "\n\n---DOCUMENT SEPARATOR---\n\n"
	summaryInputLimit   = 8000
	multiDocumentHeader = "**Multi-Document Summary:**\n\n"
)

// ChatUseCase answers follow-up questions against documents already stored
// in a session and records both sides in the chat history.
type ChatUseCase struct {
	store ports.SessionStore
	now   func() time.Time
}

func NewChatUseCase(store ports.SessionStore) *ChatUseCase {
	return &ChatUseCase{store: store, now: time.Now}
}

// Ask answers question in custom mode from the named document, or from the
// first document of the session when documentName is empty. A failed
// analysis is still recorded; its message becomes the assistant reply.
func (uc *ChatUseCase) Ask(
	ctx context.Context,
	analyzer ports.DocumentAnalyzer,
	sessionID, question, documentName string,
) (domain.ChatMessage, domain.AnalysisResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatMessage{}, domain.AnalysisResult{}, domain.WrapError(domain.ErrValidation, "chat ask", fmt.Errorf("question is empty"))
	}

	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, domain.AnalysisResult{}, err
	}
	doc, err := pickDocument(session, documentName)
	if err != nil {
		return domain.ChatMessage{}, domain.AnalysisResult{}, err
	}

	userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: question, Timestamp: uc.now().UTC()}
	if err := uc.store.AppendChat(ctx, sessionID, userMsg); err != nil {
		return domain.ChatMessage{}, domain.AnalysisResult{}, fmt.Errorf("append user message: %w", err)
	}

	result := analyzer.Analyze(ctx, domain.AnalysisRequest{
		Mode:         domain.ModeCustom,
		DocumentText: doc.Text,
		UserQuestion: question,
	})

	reply := domain.ChatMessage{Role: domain.RoleAssistant, Content: result.Text, Timestamp: uc.now().UTC()}
	if err := uc.store.AppendChat(ctx, sessionID, reply); err != nil {
		return domain.ChatMessage{}, result, fmt.Errorf("append assistant message: %w", err)
	}
	if err := uc.store.AddAnalyses(ctx, sessionID, 1); err != nil {
		return reply, result, fmt.Errorf("count analysis: %w", err)
	}
	return reply, result, nil
}

// SummarizeAll summarizes every document of the session in one call and
// appends the summary to the chat history.
func (uc *ChatUseCase) SummarizeAll(
	ctx context.Context,
	analyzer ports.DocumentAnalyzer,
	sessionID string,
) (domain.ChatMessage, domain.AnalysisResult, error) {
	session, err := uc.store.Get(ctx, sessionID)
	if err != nil {
		return domain.ChatMessage{}, domain.AnalysisResult{}, err
	}
	if len(session.Documents) == 0 {
		return domain.ChatMessage{}, domain.AnalysisResult{}, domain.WrapError(domain.ErrValidation, "chat summary", fmt.Errorf("no processed documents"))
	}

	result := analyzer.Analyze(ctx, domain.AnalysisRequest{
		Mode:         domain.ModeSummary,
		DocumentText: CombineDocuments(session.Documents),
	})

	reply := domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   multiDocumentHeader + result.Text,
		Timestamp: uc.now().UTC(),
	}
	if err := uc.store.AppendChat(ctx, sessionID, reply); err != nil {
		return domain.ChatMessage{}, result, fmt.Errorf("append summary message: %w", err)
	}
	return reply, result, nil
}

// CombineDocuments joins documents for a multi-document summary, cut to the
// summary input limit.
func CombineDocuments(docs []domain.DocumentRecord) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, "DOCUMENT: "+doc.Name+"\n"+doc.Text)
	}
	combined, _ := cutRunes(strings.Join(parts, documentSeparator), summaryInputLimit)
	return combined
}

func pickDocument(session *domain.Session, name string) (domain.DocumentRecord, error) {
	if len(session.Documents) == 0 {
		return domain.DocumentRecord{}, domain.WrapError(domain.ErrValidation, "pick document", fmt.Errorf("no processed documents in session"))
	}
	doc, ok := session.Document(strings.TrimSpace(name))
	if !ok {
		return domain.DocumentRecord{}, fmt.Errorf("pick document %q: %w", name, domain.ErrDocumentNotFound)
	}
	return doc, nil
}

func cutRunes(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]), true
}
