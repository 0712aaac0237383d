package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/helpibot/helpi/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "helpi.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetConversationUnknownReturnsNil(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	got, err := s.GetConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown conversation, got %+v", got)
	}
}

func TestUpsertAndGetConversation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	state := domain.NewConversationState("conv-1", "user-1")
	state.Username = "mira"
	state.State = domain.StateRetry
	state.LastQuestion = "Drucker druckt nicht"
	state.Retries = 2
	state.Welcomed = true

	if err := s.UpsertConversation(ctx, state); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected conversation state")
	}
	if got.State != domain.StateRetry {
		t.Errorf("State = %v, want %v", got.State, domain.StateRetry)
	}
	if got.LastQuestion != "Drucker druckt nicht" {
		t.Errorf("LastQuestion = %q", got.LastQuestion)
	}
	if got.Retries != 2 {
		t.Errorf("Retries = %d, want 2", got.Retries)
	}
	if !got.Welcomed {
		t.Error("Welcomed flag lost")
	}

	// Second upsert updates in place.
	state.Retries = 3
	state.State = domain.StateCreateTicket
	if err := s.UpsertConversation(ctx, state); err != nil {
		t.Fatalf("second UpsertConversation failed: %v", err)
	}
	got, err = s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Retries != 3 || got.State != domain.StateCreateTicket {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestDeleteConversation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertConversation(ctx, domain.NewConversationState("conv-1", "user-1")); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}
	if err := s.DeleteConversation(ctx, "conv-1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got != nil {
		t.Fatal("conversation should be gone")
	}
}

func TestCleanupStaleConversations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertConversation(ctx, domain.NewConversationState("conv-1", "user-1")); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	// Nothing is older than an hour yet.
	n, err := s.CleanupStaleConversations(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupStaleConversations failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 deletions, got %d", n)
	}

	// With a negative ttl every record is stale.
	n, err = s.CleanupStaleConversations(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("CleanupStaleConversations failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deletion, got %d", n)
	}
}
