package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PersistentStore implements the Store interface with a PostgreSQL backend.
//
// Sessions survive process restarts, which matters for the edge service: a
// deploy must not log every reader out. Lookup is by session ID (indexed),
// so the bcrypt comparison runs against exactly one row.
type PersistentStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistentStore creates a PostgreSQL session store on an open connection pool.
func NewPersistentStore(db *sql.DB, logger *slog.Logger) *PersistentStore {
	return &PersistentStore{
		db:     db,
		logger: logger,
	}
}

// Close closes the underlying connection pool.
// Safe to call multiple times.
func (s *PersistentStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// HealthCheck verifies the backing database is reachable.
// Used by the readiness probe.
func (s *PersistentStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("session store health check: %w", err)
	}

	return nil
}

// Create issues a new session row and returns the record plus the raw token.
func (s *PersistentStore) Create(ctx context.Context, userID, role string, ttl time.Duration) (*Record, string, error) {
	if userID == "" {
		return nil, "", ErrUserIDEmpty
	}

	secret, err := newSecret()
	if err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash session secret: %w", err)
	}

	record := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	query := `
		INSERT INTO sessions (id, user_id, role, secret_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := s.db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Role, string(hash), record.IssuedAt, record.ExpiresAt,
	); err != nil {
		return nil, "", fmt.Errorf("insert session: %w", err)
	}

	s.logger.Info("session created",
		slog.String("session_id", record.ID),
		slog.String("user_id", record.UserID),
		slog.String("role", record.Role),
		slog.Time("expires_at", record.ExpiresAt),
	)

	return &record, FormatToken(record.ID, secret), nil
}

// Lookup resolves a raw token to its session record.
// Returns (nil, false) for malformed, unknown, revoked or expired tokens;
// database errors degrade to absence as well, since the pipeline treats a
// missing session as anonymous rather than a rejection.
func (s *PersistentStore) Lookup(ctx context.Context, token string) (*Record, bool) {
	sessionID, secret, err := ParseToken(token)
	if err != nil {
		performDummyBcryptComparison()

		return nil, false
	}

	query := `
		SELECT id, user_id, role, secret_hash, issued_at, expires_at
		FROM sessions
		WHERE id = $1 AND revoked = FALSE AND expires_at > now()
	`

	var (
		record     Record
		secretHash string
	)

	err = s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&record.ID,
		&record.UserID,
		&record.Role,
		&secretHash,
		&record.IssuedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("session lookup failed, treating as anonymous",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}

		performDummyBcryptComparison()

		return nil, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)); err != nil {
		return nil, false
	}

	return &record, true
}

// Revoke invalidates a session by ID.
func (s *PersistentStore) Revoke(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked = TRUE WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if affected == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// DeleteExpired removes sessions that expired before the given instant.
// Returns the number of rows removed. Intended for a periodic janitor.
func (s *PersistentStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return result.RowsAffected()
}
