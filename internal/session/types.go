// Package session provides session records, token handling and session
// storage for the Bindery edge service.
//
// Sessions are created at login and read-only afterwards from the pipeline's
// perspective: the middleware only ever resolves a token to a record and
// attaches it to the request context. Token crypto is deliberately simple -
// the raw token carries the session ID plus a random secret, and stores keep
// only a bcrypt hash of the secret.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies Bindery session tokens in cookies and bearer headers.
	TokenPrefix = "bindery_sess_"

	secretByteSize  = 32
	secretHexLength = 64 // 32 random bytes hex encoded

	maskPrefixLen = 8
	maskSuffixLen = 4
)

var (
	// ErrTokenEmpty is returned when an empty token string is parsed.
	ErrTokenEmpty = errors.New("session token cannot be empty")
	// ErrInvalidTokenFormat is returned when a token doesn't match the expected format.
	ErrInvalidTokenFormat = errors.New("invalid session token format")
	// ErrSessionNotFound is returned when operating on a non-existent session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserIDEmpty is returned when a session is created without a user.
	ErrUserIDEmpty = errors.New("user ID cannot be empty")
)

// Record represents a validated session.
//
// Records are immutable once issued; revocation and expiry are store concerns.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the session is still live at the given instant.
// A session is valid iff now is strictly before its expiry.
func (r *Record) Valid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// Store defines the interface for session storage and retrieval.
//
// Implementations may be in-memory (single-node deployments, tests) or
// PostgreSQL-backed (production). Lookup failures are reported as absence,
// never as errors: the pipeline treats a missing session as anonymous.
type Store interface {
	// Lookup resolves a raw token to its session record.
	// Returns (nil, false) when the token is malformed, unknown, revoked or expired.
	Lookup(ctx context.Context, token string) (*Record, bool)
	// Create issues a new session and returns the record plus the raw token.
	// The raw token is only ever available here; stores keep a hash.
	Create(ctx context.Context, userID, role string, ttl time.Duration) (*Record, string, error)
	// Revoke invalidates a session by ID.
	Revoke(ctx context.Context, sessionID string) error
}

// newSecret generates the random secret half of a session token.
func newSecret() (string, error) {
	buf := make([]byte, secretByteSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// FormatToken assembles the raw token from a session ID and secret.
func FormatToken(sessionID, secret string) string {
	return TokenPrefix + sessionID + "_" + secret
}

// ParseToken splits a raw token into session ID and secret.
//
// Format: "bindery_sess_<session-id>_<64 hex chars>". The secret never
// contains underscores, so the last separator is unambiguous even though
// UUID session IDs contain hyphens.
func ParseToken(raw string) (sessionID, secret string, err error) {
	if raw == "" {
		return "", "", ErrTokenEmpty
	}

	if !strings.HasPrefix(raw, TokenPrefix) {
		return "", "", ErrInvalidTokenFormat
	}

	rest := raw[len(TokenPrefix):]

	sep := strings.LastIndex(rest, "_")
	if sep <= 0 {
		return "", "", ErrInvalidTokenFormat
	}

	sessionID, secret = rest[:sep], rest[sep+1:]
	if len(secret) != secretHexLength {
		return "", "", ErrInvalidTokenFormat
	}

	if _, err := hex.DecodeString(secret); err != nil {
		return "", "", ErrInvalidTokenFormat
	}

	return sessionID, secret, nil
}

// MaskToken masks a session token for secure logging, keeping only the
// prefix, the start of the session ID and the last few characters.
func MaskToken(raw string) string {
	if raw == "" {
		return ""
	}

	if !strings.HasPrefix(raw, TokenPrefix) || len(raw) < len(TokenPrefix)+maskPrefixLen+maskSuffixLen {
		return "***"
	}

	visible := len(TokenPrefix) + maskPrefixLen

	return raw[:visible] + "..." + raw[len(raw)-maskSuffixLen:]
}
