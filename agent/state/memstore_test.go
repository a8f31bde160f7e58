package state

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}
	if _, err := store.Load(ctx, "  "); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	st := NewConversationState("s1", testNow)
	st.AppendMessage(RoleUser, "hello", testNow)
	st.Plan.Date = "2025-10-11"
	if err := store.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the original must not leak into the stored copy.
	st.Plan.Date = "changed"

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Plan.Date != "2025-10-11" {
		t.Fatalf("stored state shares memory with caller: date = %q", loaded.Plan.Date)
	}
	if len(loaded.Messages) != 1 || loaded.Messages[0].Content != "hello" {
		t.Fatalf("unexpected messages: %+v", loaded.Messages)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreSaveValidation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if err := store.Save(context.Background(), nil); !errors.Is(err, ErrNilState) {
		t.Fatalf("expected ErrNilState, got %v", err)
	}
	if err := store.Save(context.Background(), &ConversationState{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}
