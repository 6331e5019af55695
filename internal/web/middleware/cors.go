package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig provides cross-origin settings for API-classified routes.
// Implemented by the server configuration.
type CORSConfig interface {
	// GetAllowedOrigins returns the list of allowed origins.
	// A single "*" entry allows any origin (credentials disabled).
	GetAllowedOrigins() []string

	// GetAllowedMethods returns the list of allowed HTTP methods.
	GetAllowedMethods() []string

	// GetAllowedHeaders returns the list of allowed request headers.
	GetAllowedHeaders() []string

	// GetMaxAge returns how long browsers may cache preflight results, in seconds.
	GetMaxAge() int

	// AllowCredentials reports whether cookies and authorization headers
	// may accompany cross-origin requests.
	AllowCredentials() bool
}

// CORS returns a middleware that handles cross-origin requests on routes the
// classifier marks as API. Pages, admin screens, and static assets are
// same-origin surfaces and never receive CORS headers.
func CORS(config CORSConfig, classifier *Classifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if classifier.Classify(r.URL.Path) != ClassAPI {
				next.ServeHTTP(w, r)

				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)

				return
			}

			allowed, wildcard := originAllowed(origin, config.GetAllowedOrigins())
			if !allowed {
				next.ServeHTTP(w, r)

				return
			}

			headers := w.Header()
			if wildcard {
				headers.Set("Access-Control-Allow-Origin", "*")
			} else {
				headers.Set("Access-Control-Allow-Origin", origin)
				headers.Add("Vary", "Origin")

				if config.AllowCredentials() {
					headers.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				headers.Set("Access-Control-Allow-Methods", strings.Join(config.GetAllowedMethods(), ", "))
				headers.Set("Access-Control-Allow-Headers", strings.Join(config.GetAllowedHeaders(), ", "))
				headers.Set("Access-Control-Max-Age", strconv.Itoa(config.GetMaxAge()))
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed reports whether origin matches the allowed list, and whether
// the match came from the "*" wildcard.
func originAllowed(origin string, allowedOrigins []string) (allowed, wildcard bool) {
	for _, candidate := range allowedOrigins {
		if candidate == "*" {
			return true, true
		}

		if strings.EqualFold(candidate, origin) {
			return true, false
		}
	}

	return false, false
}
