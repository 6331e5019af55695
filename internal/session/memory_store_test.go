package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx := t.Context()

	t.Run("create and lookup", func(t *testing.T) {
		store := NewMemoryStore()

		record, token, err := store.Create(ctx, "user-42", "member", time.Hour)
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		if !strings.HasPrefix(token, TokenPrefix) {
			t.Errorf("token should carry the bindery prefix, got %s", MaskToken(token))
		}

		found, ok := store.Lookup(ctx, token)
		if !ok {
			t.Fatal("Lookup() session not found")
		}

		if found.ID != record.ID {
			t.Errorf("Lookup() ID = %v, want %v", found.ID, record.ID)
		}

		if found.UserID != "user-42" {
			t.Errorf("Lookup() UserID = %v, want user-42", found.UserID)
		}

		if found.Role != "member" {
			t.Errorf("Lookup() Role = %v, want member", found.Role)
		}
	})

	t.Run("lookup unknown token", func(t *testing.T) {
		store := NewMemoryStore()

		secret, _ := newSecret()
		if _, ok := store.Lookup(ctx, FormatToken("no-such-session", secret)); ok {
			t.Error("Lookup() found a session that was never created")
		}
	})

	t.Run("lookup malformed token", func(t *testing.T) {
		store := NewMemoryStore()

		if _, ok := store.Lookup(ctx, "garbage"); ok {
			t.Error("Lookup() accepted a malformed token")
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		store := NewMemoryStore()

		record, _, err := store.Create(ctx, "user-42", "member", time.Hour)
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		otherSecret, _ := newSecret()
		forged := FormatToken(record.ID, otherSecret)

		if _, ok := store.Lookup(ctx, forged); ok {
			t.Error("Lookup() accepted a token with the wrong secret")
		}
	})

	t.Run("expired session is anonymous", func(t *testing.T) {
		store := NewMemoryStore()

		_, token, err := store.Create(ctx, "user-42", "member", time.Minute)
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		// Advance the store clock past expiry
		store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

		if _, ok := store.Lookup(ctx, token); ok {
			t.Error("Lookup() returned an expired session")
		}
	})

	t.Run("revoked session is anonymous", func(t *testing.T) {
		store := NewMemoryStore()

		record, token, err := store.Create(ctx, "user-42", "admin", time.Hour)
		if err != nil {
			t.Fatalf("Create() unexpected error: %v", err)
		}

		if err := store.Revoke(ctx, record.ID); err != nil {
			t.Fatalf("Revoke() unexpected error: %v", err)
		}

		if _, ok := store.Lookup(ctx, token); ok {
			t.Error("Lookup() returned a revoked session")
		}
	})

	t.Run("revoke unknown session", func(t *testing.T) {
		store := NewMemoryStore()

		if err := store.Revoke(ctx, "no-such-session"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("create requires user", func(t *testing.T) {
		store := NewMemoryStore()

		if _, _, err := store.Create(ctx, "", "member", time.Hour); !errors.Is(err, ErrUserIDEmpty) {
			t.Errorf("expected ErrUserIDEmpty, got %v", err)
		}
	})
}
