package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// storedSession is the internal representation kept by MemoryStore.
// The raw secret is never stored, only its bcrypt hash.
type storedSession struct {
	record     Record
	secretHash []byte
	revoked    bool
}

// MemoryStore provides thread-safe in-memory session storage.
//
// Suitable for single-node deployments and tests. Production deployments use
// PersistentStore so sessions survive restarts.
type MemoryStore struct {
	// sessions maps session IDs to stored sessions
	sessions map[string]*storedSession
	// mutex protects concurrent access to the map
	mutex sync.RWMutex
	// now is injectable for deterministic expiry tests
	now func() time.Time
}

// NewMemoryStore creates a new thread-safe in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*storedSession),
		now:      time.Now,
	}
}

// Create issues a new session for the given user and returns the record
// plus the raw token handed to the client.
func (s *MemoryStore) Create(_ context.Context, userID, role string, ttl time.Duration) (*Record, string, error) {
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

	issued := s.now()
	record := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
	}

	s.mutex.Lock()
	s.sessions[record.ID] = &storedSession{record: record, secretHash: hash}
	s.mutex.Unlock()

	return &record, FormatToken(record.ID, secret), nil
}

// Lookup resolves a raw token to its session record.
// Returns (nil, false) for malformed, unknown, revoked or expired tokens.
func (s *MemoryStore) Lookup(_ context.Context, token string) (*Record, bool) {
	sessionID, secret, err := ParseToken(token)
	if err != nil {
		performDummyBcryptComparison()

		return nil, false
	}

	s.mutex.RLock()
	stored, exists := s.sessions[sessionID]
	s.mutex.RUnlock()

	if !exists {
		performDummyBcryptComparison()

		return nil, false
	}

	if err := bcrypt.CompareHashAndPassword(stored.secretHash, []byte(secret)); err != nil {
		return nil, false
	}

	if stored.revoked || !stored.record.Valid(s.now()) {
		return nil, false
	}

	// Return a copy to prevent external modification
	record := stored.record

	return &record, true
}

// Revoke invalidates a session by ID.
func (s *MemoryStore) Revoke(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored, exists := s.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	stored.revoked = true

	return nil
}

// Len returns the number of stored sessions, revoked or not.
func (s *MemoryStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.sessions)
}

// Timing attack prevention: perform a dummy bcrypt comparison so a token
// miss costs the same as a token hit.
func performDummyBcryptComparison() {
	_ = bcrypt.CompareHashAndPassword([]byte("dummy"), []byte("dummy"))
}
