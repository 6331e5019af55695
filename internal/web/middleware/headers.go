package middleware

import (
	"net/http"

	"github.com/bindery-io/bindery/internal/config"
)

// headerCSP is the one header key the merge treats specially. Only
// HeaderPolicy.ContentSecurityPolicy may produce a value for it; HeaderSet
// refuses to carry it so no second component can smuggle in a conflicting
// policy and win a silent last-writer race.
const headerCSP = "Content-Security-Policy"

// Wire-level header values. Security-relevant values are fixed strings so
// they can be asserted byte-for-byte.
const (
	hstsValue = "max-age=31536000; includeSubDomains; preload"

	clearSiteDataValue = `"cache", "cookies", "storage"`
	noStoreValue       = "no-store, no-cache, must-revalidate"
)

// HeaderSet is a response header mapping built fresh per request.
// It is typed to exclude the CSP key: Set silently drops it.
type HeaderSet map[string]string

// Set stores a header value under its canonical key.
// Attempts to set Content-Security-Policy are dropped; the header policy's
// ContentSecurityPolicy method is the sole emission point for CSP.
func (h HeaderSet) Set(key, value string) {
	canonical := http.CanonicalHeaderKey(key)
	if canonical == headerCSP {
		return
	}

	h[canonical] = value
}

// HeaderPolicy computes the security headers for a response based on route
// classification and runtime mode. Pure of its inputs; no I/O.
type HeaderPolicy struct {
	mode       config.RuntimeMode
	classifier *Classifier
}

// NewHeaderPolicy creates a header policy for the given runtime mode.
func NewHeaderPolicy(mode config.RuntimeMode, classifier *Classifier) *HeaderPolicy {
	return &HeaderPolicy{mode: mode, classifier: classifier}
}

// HeadersFor returns the non-CSP hardening headers for a response.
//
// Baseline headers are always present. Production adds HSTS and
// Upgrade-Insecure-Requests. Logout responses additionally clear client
// state and disable caching; admin and auth surfaces are never cached.
func (p *HeaderPolicy) HeadersFor(class RouteClass, _ string, isLogout bool) HeaderSet {
	headers := make(HeaderSet)

	headers.Set("X-Content-Type-Options", "nosniff")
	headers.Set("X-Frame-Options", "DENY")
	headers.Set("X-XSS-Protection", "1; mode=block")
	headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")

	if p.mode.IsProduction() {
		headers.Set("Strict-Transport-Security", hstsValue)
		headers.Set("Upgrade-Insecure-Requests", "1")
	}

	if class == ClassAdmin || class == ClassAuth {
		headers.Set("Cache-Control", noStoreValue)
	}

	if isLogout {
		headers.Set("Clear-Site-Data", clearSiteDataValue)
		headers.Set("Cache-Control", noStoreValue)
	}

	return headers
}

// ContentSecurityPolicy returns the CSP string for a route class.
// This is the single emission point for CSP in the whole pipeline.
func (p *HeaderPolicy) ContentSecurityPolicy(class RouteClass) string {
	switch class {
	case ClassAdmin, ClassAuth:
		return "default-src 'self'; script-src 'self'; style-src 'self'; " +
			"img-src 'self' data:; frame-ancestors 'none'; form-action 'self'; base-uri 'self'"
	case ClassAPI, ClassStatic:
		return "default-src 'none'; frame-ancestors 'none'"
	default:
		// Public marketing pages embed cover art and inline styles from the
		// page builder, so the policy is looser than the dashboard's.
		return "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' https: data:; font-src 'self' https:; frame-ancestors 'none'"
	}
}

// SecurityHeaders creates a middleware that merges the policy's headers onto
// every response just before the first byte is written.
//
// Merge precedence: a non-CSP header already set by the downstream handler
// wins over the policy value; the CSP key is always overwritten by the
// policy so exactly one Content-Security-Policy value reaches the wire.
func SecurityHeaders(policy *HeaderPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := policy.classifier.Classify(r.URL.Path)

			mw := &headerMergeWriter{
				ResponseWriter: w,
				headers:        policy.HeadersFor(class, r.URL.Path, IsLogout(r.URL.Path)),
				csp:            policy.ContentSecurityPolicy(class),
			}

			next.ServeHTTP(mw, r)

			// Handlers that write nothing still get the policy headers;
			// net/http emits the implicit 200 after we return.
			mw.merge()
		})
	}
}

// headerMergeWriter applies the policy headers at first write, after the
// downstream handler has had its chance to set its own.
type headerMergeWriter struct {
	http.ResponseWriter

	headers HeaderSet
	csp     string
	merged  bool
}

func (w *headerMergeWriter) WriteHeader(code int) {
	w.merge()
	w.ResponseWriter.WriteHeader(code)
}

func (w *headerMergeWriter) Write(b []byte) (int, error) {
	// An implicit 200 flushes headers, so merge before delegating.
	w.merge()

	return w.ResponseWriter.Write(b)
}

func (w *headerMergeWriter) merge() {
	if w.merged {
		return
	}

	w.merged = true

	h := w.Header()

	for key, value := range w.headers {
		if _, exists := h[key]; !exists {
			h.Set(key, value)
		}
	}

	// Set (not Add) replaces whatever the handler wrote: one CSP, policy's.
	h.Set(headerCSP, w.csp)
}
