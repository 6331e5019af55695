package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const (
	requestIDSize = 8
	// requestIDLength is the expected output length in hex characters (8 bytes = 16 hex chars).
	requestIDLength = 16
)

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// RequestID creates a middleware that tags every request with an ID.
// If the request already carries an X-Request-ID header, that value is kept;
// otherwise a new ID is generated. The ID is echoed on the response and made
// available to every downstream log line.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")

			if requestID == "" {
				requestID = generateRequestID()
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return requestID
	}

	return "unknown"
}

// generateRequestID generates a new request ID. crypto/rand is the primary
// source; the timestamp fallback only matters if the entropy pool is broken.
func generateRequestID() string {
	bytes := make([]byte, requestIDSize)
	if _, err := rand.Read(bytes); err != nil {
		fallback := fmt.Sprintf("%x", time.Now().UnixNano())
		if len(fallback) > requestIDLength {
			return fallback[:requestIDLength]
		}

		return fmt.Sprintf("%-*s", requestIDLength, fallback)
	}

	return hex.EncodeToString(bytes)
}
