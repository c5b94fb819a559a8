package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/smartdoc-agent/internal/core/domain"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if session.ID == "" || session.StartedAt.IsZero() {
		t.Fatalf("expected id and start time, got %+v", session)
	}

	if err := store.AppendDocuments(ctx, session.ID, domain.DocumentRecord{Name: "a.pdf"}, domain.DocumentRecord{Name: "b.pdf"}); err != nil {
		t.Fatalf("AppendDocuments() error = %v", err)
	}
	if err := store.AppendChat(ctx, session.ID, domain.ChatMessage{Role: domain.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendChat() error = %v", err)
	}
	if err := store.AddAnalyses(ctx, session.ID, 3); err != nil {
		t.Fatalf("AddAnalyses() error = %v", err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Documents) != 2 || got.Documents[1].Name != "b.pdf" {
		t.Fatalf("unexpected documents %+v", got.Documents)
	}
	if len(got.ChatHistory) != 1 || got.ChatHistory[0].Timestamp.IsZero() {
		t.Fatalf("expected timestamped chat message, got %+v", got.ChatHistory)
	}
	if got.AnalysisCount != 3 {
		t.Fatalf("expected 3 analyses, got %d", got.AnalysisCount)
	}

	if err := store.ClearChat(ctx, session.ID); err != nil {
		t.Fatalf("ClearChat() error = %v", err)
	}
	if err := store.Clear(ctx, session.ID); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	got, _ = store.Get(ctx, session.ID)
	if len(got.Documents) != 0 || len(got.ChatHistory) != 0 || got.AnalysisCount != 0 {
		t.Fatalf("expected cleared session, got %+v", got)
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	session, _ := store.Create(ctx)
	_ = store.AppendDocuments(ctx, session.ID, domain.DocumentRecord{Name: "a.pdf"})

	got, _ := store.Get(ctx, session.ID)
	got.Documents[0].Name = "mutated.pdf"
	got.AnalysisCount = 99

	again, _ := store.Get(ctx, session.ID)
	if again.Documents[0].Name != "a.pdf" || again.AnalysisCount != 0 {
		t.Fatalf("store state leaked through a returned copy: %+v", again)
	}
}

func TestStoreUnknownSession(t *testing.T) {
	store := NewSessionStore()
	if err := store.AddAnalyses(context.Background(), "missing", 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	session, _ := store.Create(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.AddAnalyses(ctx, session.ID, 1)
		}()
	}
	wg.Wait()

	got, _ := store.Get(ctx, session.ID)
	if got.AnalysisCount != 50 {
		t.Fatalf("expected 50 analyses, got %d", got.AnalysisCount)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one live session")
	}
}
