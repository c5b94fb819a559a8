package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
	"github.com/kirillkom/smartdoc-agent/internal/core/ports"
)

// SessionStore keeps sessions in process memory. Nothing survives a
// restart. Every read returns a deep copy.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

var _ ports.SessionStore = (*SessionStore)(nil)

func (s *SessionStore) Create(_ context.Context) (*domain.Session, error) {
	session := &domain.Session{
		ID:          uuid.NewString(),
		Documents:   []domain.DocumentRecord{},
		ChatHistory: []domain.ChatMessage{},
		StartedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return cloneSession(session), nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneSession(session), nil
}

func (s *SessionStore) AppendDocuments(_ context.Context, id string, docs ...domain.DocumentRecord) error {
	return s.update(id, func(session *domain.Session) {
		session.Documents = append(session.Documents, docs...)
	})
}

func (s *SessionStore) AppendChat(_ context.Context, id string, messages ...domain.ChatMessage) error {
	return s.update(id, func(session *domain.Session) {
		for _, msg := range messages {
			if msg.Timestamp.IsZero() {
				msg.Timestamp = s.now().UTC()
			}
			session.ChatHistory = append(session.ChatHistory, msg)
		}
	})
}

func (s *SessionStore) AddAnalyses(_ context.Context, id string, n int) error {
	return s.update(id, func(session *domain.Session) {
		session.AnalysisCount += n
	})
}

func (s *SessionStore) ClearChat(_ context.Context, id string) error {
	return s.update(id, func(session *domain.Session) {
		session.ChatHistory = []domain.ChatMessage{}
	})
}

func (s *SessionStore) Clear(_ context.Context, id string) error {
	return s.update(id, func(session *domain.Session) {
		session.Documents = []domain.DocumentRecord{}
		session.ChatHistory = []domain.ChatMessage{}
		session.AnalysisCount = 0
	})
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return notFound(id)
	}
	delete(s.sessions, id)
	return nil
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) update(id string, fn func(*domain.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return notFound(id)
	}
	fn(session)
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
}

func cloneSession(in *domain.Session) *domain.Session {
	out := *in
	out.Documents = append([]domain.DocumentRecord(nil), in.Documents...)
	out.ChatHistory = append([]domain.ChatMessage(nil), in.ChatHistory...)
	if out.Documents == nil {
		out.Documents = []domain.DocumentRecord{}
	}
	if out.ChatHistory == nil {
		out.ChatHistory = []domain.ChatMessage{}
	}
	return &out
}
