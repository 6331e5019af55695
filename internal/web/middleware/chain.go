// Package middleware provides the HTTP security pipeline for the Bindery edge service.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/bindery-io/bindery/internal/audit"
	"github.com/bindery-io/bindery/internal/session"
)

type (
	// Option is a function that applies middleware to a handler.
	Option func(http.Handler) http.Handler
)

// Apply applies a chain of middleware options to a base handler.
// Middleware is applied in the order provided (first option wraps handler first,
// so the first option is the outermost layer at request time).
//
// Example:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithRequestID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithRateLimit(limiter, recorder, logger),
//	    middleware.WithSessionResolver(store, logger),
//	    middleware.WithHTTPSRedirect(enforcer, recorder, logger),
//	    middleware.WithRequestLogger(logger),
//	    middleware.WithSecurityHeaders(policy),
//	    middleware.WithCORS(corsConfig),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	// Apply middleware in reverse order so that the first option
	// becomes the outermost middleware in the chain
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithRequestID returns an option that adds request ID middleware.
func WithRequestID() Option {
	return func(next http.Handler) http.Handler {
		return RequestID()(next)
	}
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return Recovery(logger)(next)
	}
}

// WithRateLimit returns an option that adds rate limiting middleware.
// If limiter is nil, this option is skipped (no middleware applied);
// development mode passes nil to disable admission control entirely.
func WithRateLimit(limiter Limiter, recorder audit.Recorder, logger *slog.Logger) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if limiter not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return RateLimit(limiter, recorder, logger)(next)
	}
}

// WithSessionResolver returns an option that adds session resolution middleware.
// If store is nil, this option is skipped (every request stays anonymous).
func WithSessionResolver(store session.Store, logger *slog.Logger) Option {
	if store == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if store not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return ResolveSession(store, logger)(next)
	}
}

// WithHTTPSRedirect returns an option that adds HTTPS enforcement middleware.
// If enforcer is nil, this option is skipped.
func WithHTTPSRedirect(enforcer *Enforcer, recorder audit.Recorder, logger *slog.Logger) Option {
	if enforcer == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if enforcer not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return EnforceHTTPS(enforcer, recorder, logger)(next)
	}
}

// WithRequestLogger returns an option that adds request logging middleware.
func WithRequestLogger(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return RequestLogger(logger)(next)
	}
}

// WithSecurityHeaders returns an option that adds the security header merge middleware.
func WithSecurityHeaders(policy *HeaderPolicy) Option {
	return func(next http.Handler) http.Handler {
		return SecurityHeaders(policy)(next)
	}
}

// WithCORS returns an option that adds CORS middleware for API-classified routes.
func WithCORS(config CORSConfig, classifier *Classifier) Option {
	return func(next http.Handler) http.Handler {
		return CORS(config, classifier)(next)
	}
}
