package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/bindery-io/bindery/internal/session"
)

// SessionCookieName is the cookie carrying the session token for
// browser clients. API clients use the Authorization header instead.
const SessionCookieName = "bindery_session"

// ResolveSession returns a middleware that attaches the session record for
// the request's token, when one is present and valid, to the request context.
//
// Resolution can only ever upgrade a request from anonymous to
// authenticated. A missing, malformed, expired, or unknown token leaves the
// request anonymous and lets it proceed; rejecting is the business of
// downstream handlers that require authentication, not of this middleware.
func ResolveSession(store session.Store, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)

				return
			}

			record, ok := store.Lookup(r.Context(), token)
			if !ok {
				logger.Debug("session token did not resolve, continuing as anonymous",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("token", session.MaskToken(token)),
				)
				next.ServeHTTP(w, r)

				return
			}

			next.ServeHTTP(w, r.WithContext(SetSession(r.Context(), record)))
		})
	}
}

// extractToken finds the session token on the request: the session cookie
// for browser clients, the Authorization bearer token for API clients.
// The cookie wins when both are present.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authz := r.Header.Get("Authorization")
	if bearer, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return strings.TrimSpace(bearer)
	}

	return ""
}
