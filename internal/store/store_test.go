package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/harvestflow/harvestflow/internal/models"
)

// testStoreContract runs the Store behavior shared by every backend.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	// Missing session is (nil, nil), not an error.
	got, err := s.GetSession(ctx, "missing")
	if err != nil {
		t.Fatalf("GetSession on missing id errored: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing session")
	}

	state := models.NewConversationState("sess-1")
	state.AppendMessage(models.RoleUser, "I want to list my corn")
	state.Intent = models.IntentProduct
	state.Collected = state.Collected.Set("name", "Sweet Corn")
	state.AwaitingKey = "category"

	if err := s.SaveSession(ctx, state); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err = s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("saved session not found")
	}
	if got.Intent != models.IntentProduct || got.AwaitingKey != "category" {
		t.Errorf("loaded state differs: %+v", got)
	}
	if v, ok := got.Collected.Get("name"); !ok || v != "Sweet Corn" {
		t.Errorf("collected data not persisted: %+v", got.Collected)
	}

	// Mutating the caller's copy after save must not affect the store.
	state.Collected = state.Collected.Set("category", "Vegetable")
	reloaded, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if reloaded.Collected.Has("category") {
		t.Error("store leaked a reference to the caller's state")
	}

	// Save is an upsert.
	state.Finalized = true
	if err := s.SaveSession(ctx, state); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}
	got, _ = s.GetSession(ctx, "sess-1")
	if !got.Finalized {
		t.Error("upsert did not replace state")
	}

	ids, err := s.ListSessionIDs(ctx)
	if err != nil {
		t.Fatalf("ListSessionIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "sess-1" {
		t.Errorf("unexpected session ids: %v", ids)
	}

	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	got, err = s.GetSession(ctx, "sess-1")
	if err != nil || got != nil {
		t.Errorf("session survived deletion: %+v, %v", got, err)
	}
	// Deleting again is fine.
	if err := s.DeleteSession(ctx, "sess-1"); err != nil {
		t.Errorf("double delete errored: %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()
	testStoreContract(t, s)
}

func TestInMemoryStoreTTL(t *testing.T) {
	s := NewInMemoryStore(WithTTL(50 * time.Millisecond))
	defer s.Close()
	ctx := context.Background()

	state := models.NewConversationState("ephemeral")
	if err := s.SaveSession(ctx, state); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	got, err := s.GetSession(ctx, "ephemeral")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Error("expected session to expire")
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(WithRedisAddr(mr.Addr()))
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()
	testStoreContract(t, s)
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(WithRedisAddr(mr.Addr()), WithTTL(time.Minute))
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	state := models.NewConversationState("ttl-check")
	if err := s.SaveSession(context.Background(), state); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	got, err := s.GetSession(context.Background(), "ttl-check")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Error("expected session to expire after TTL")
	}
}

func TestSQLiteStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStore(WithDSN(dir + "/sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	testStoreContract(t, s)
}

func TestNewSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestNewRedisStoreRequiresAddr(t *testing.T) {
	if _, err := NewRedisStore(); err == nil {
		t.Error("expected error without address")
	}
}
