package middleware

import (
	"context"

	"github.com/bindery-io/bindery/internal/session"
)

// sessionKey is the context key type for the resolved session record.
// Unexported struct type prevents collisions with other packages' keys.
type sessionKey struct{}

// SetSession returns a new context carrying the resolved session record.
func SetSession(ctx context.Context, record *session.Record) context.Context {
	return context.WithValue(ctx, sessionKey{}, record)
}

// GetSession extracts the session record from the context.
// A nil record with ok=false means the request is anonymous.
func GetSession(ctx context.Context) (*session.Record, bool) {
	record, ok := ctx.Value(sessionKey{}).(*session.Record)
	if !ok || record == nil {
		return nil, false
	}

	return record, true
}
