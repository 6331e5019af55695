package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery creates a middleware that recovers from panics and logs them.
//
// Ordinary downstream handler errors are not intercepted anywhere in the
// pipeline - they surface however the handler chooses. Recovery only exists
// so a panicking page handler takes down one request instead of the process.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func(ctx context.Context) {
				if err := recover(); err != nil {
					requestID := GetRequestID(ctx)

					logger.Error("HTTP request panic recovered",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("request_id", requestID),
						slog.Any("panic", err),
						slog.String("stack_trace", string(debug.Stack())),
					)

					problem := struct {
						Type      string `json:"type"`
						Title     string `json:"title"`
						Status    int    `json:"status"`
						Detail    string `json:"detail"`
						Instance  string `json:"instance"`
						RequestID string `json:"requestId"`
					}{
						Type:      fmt.Sprintf("https://bindery.io/problems/%d", http.StatusInternalServerError),
						Title:     "Internal Server Error",
						Status:    http.StatusInternalServerError,
						Detail:    "An unexpected error occurred while processing the request",
						Instance:  r.URL.Path,
						RequestID: requestID,
					}

					w.Header().Set("Content-Type", contentTypeProblemJSON)
					w.WriteHeader(http.StatusInternalServerError)

					if err := json.NewEncoder(w).Encode(problem); err != nil {
						logger.Error("Failed to encode error response",
							slog.Any("error", err),
							slog.String("request_id", requestID),
						)
					}
				}
			}(r.Context())

			next.ServeHTTP(w, r)
		})
	}
}
