package domain

import "time"

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-user state the core reads and writes through
// ports.SessionStore. Stores hand out copies.
type Session struct {
	ID            string           `json:"id"`
	Documents     []DocumentRecord `json:"documents"`
	ChatHistory   []ChatMessage    `json:"chat_history"`
	AnalysisCount int              `json:"analysis_count"`
	StartedAt     time.Time        `json:"started_at"`
}

// Document finds a processed document by name. An empty name selects the
// first document of the session.
func (s *Session) Document(name string) (DocumentRecord, bool) {
	if len(s.Documents) == 0 {
		return DocumentRecord{}, false
	}
	if name == "" {
		return s.Documents[0], true
	}
	for _, doc := range s.Documents {
		if doc.Name == name {
			return doc, true
		}
	}
	return DocumentRecord{}, false
}

type SessionStats struct {
	Files          int `json:"files"`
	ProcessedPages int `json:"processed_pages"`
	Words          int `json:"words"`
	Analyses       int `json:"analyses"`
	ChatMessages   int `json:"chat_messages"`
}

func (s *Session) Stats() SessionStats {
	stats := SessionStats{
		Files:        len(s.Documents),
		Analyses:     s.AnalysisCount,
		ChatMessages: len(s.ChatHistory),
	}
	for _, doc := range s.Documents {
		stats.ProcessedPages += doc.ProcessedPages
		stats.Words += doc.WordCount
	}
	return stats
}
