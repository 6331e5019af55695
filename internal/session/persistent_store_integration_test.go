package session

import (
	"context"
	"log/slog"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/bindery-io/bindery/internal/config"
)

// setupStore spins up a PostgreSQL container with the sessions schema applied
// and returns a PersistentStore backed by it.
func setupStore(ctx context.Context, t *testing.T) *PersistentStore {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	return NewPersistentStore(testDB.Connection, slog.New(slog.DiscardHandler))
}

func TestPersistentStore_CreateAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(ctx, t)

	record, token, err := store.Create(ctx, "user-7", "author", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)

	found, ok := store.Lookup(ctx, token)
	require.True(t, ok, "session should resolve right after creation")
	require.Equal(t, record.ID, found.ID)
	require.Equal(t, "user-7", found.UserID)
	require.Equal(t, "author", found.Role)
}

func TestPersistentStore_WrongSecretRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(ctx, t)

	record, _, err := store.Create(ctx, "user-7", "member", time.Hour)
	require.NoError(t, err)

	otherSecret, err := newSecret()
	require.NoError(t, err)

	_, ok := store.Lookup(ctx, FormatToken(record.ID, otherSecret))
	require.False(t, ok, "forged token must not resolve")
}

func TestPersistentStore_RevokeAndExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStore(ctx, t)

	// Revoked sessions stop resolving
	record, token, err := store.Create(ctx, "user-7", "member", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, record.ID))

	_, ok := store.Lookup(ctx, token)
	require.False(t, ok, "revoked session must not resolve")

	// Revoking twice still succeeds (row exists), unknown IDs do not
	require.NoError(t, store.Revoke(ctx, record.ID))
	require.ErrorIs(t, store.Revoke(ctx, "b8f6f8f4-0000-4000-8000-000000000000"), ErrSessionNotFound)

	// Expired sessions stop resolving and get swept by the janitor
	expired, expiredToken, err := store.Create(ctx, "user-8", "member", -time.Minute)
	require.NoError(t, err)

	_, ok = store.Lookup(ctx, expiredToken)
	require.False(t, ok, "expired session must not resolve")

	removed, err := store.DeleteExpired(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(1), "janitor should remove the expired session %s", expired.ID)
}
