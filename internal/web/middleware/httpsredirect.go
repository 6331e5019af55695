package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/bindery-io/bindery/internal/audit"
	"github.com/bindery-io/bindery/internal/config"
)

// Decision is the outcome of an HTTPS enforcement check.
type Decision struct {
	// Redirect is true when the request must be answered with a 301 to Location.
	Redirect bool
	// Location is the HTTPS-upgraded absolute URL, set only when Redirect is true.
	Location string
}

// defaultExemptPaths are never redirected: orchestration probes must reach
// the service over plain HTTP inside the cluster.
var defaultExemptPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// loopbackHosts are never redirected regardless of mode.
var loopbackHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// Enforcer decides whether an inbound request must be redirected to HTTPS.
//
// The decision honors reverse-proxy forwarded-protocol headers because the
// enforcer normally runs behind a TLS-terminating proxy where r.TLS is nil
// even for secure client connections.
type Enforcer struct {
	mode   config.RuntimeMode
	exempt map[string]bool
}

// NewEnforcer creates an HTTPS enforcer for the given runtime mode.
// extraExempt extends the built-in health/metrics exemptions.
func NewEnforcer(mode config.RuntimeMode, extraExempt []string) *Enforcer {
	exempt := make(map[string]bool, len(defaultExemptPaths)+len(extraExempt))
	for path := range defaultExemptPaths {
		exempt[path] = true
	}

	for _, path := range extraExempt {
		if strings.HasPrefix(path, "/") {
			exempt[path] = true
		}
	}

	return &Enforcer{mode: mode, exempt: exempt}
}

// Decide returns the enforcement decision for one request.
// Idempotent: a secure request always yields serve, however often asked.
func (e *Enforcer) Decide(r *http.Request) Decision {
	if e.mode.IsDevelopment() {
		return Decision{}
	}

	if isSecureRequest(r) {
		return Decision{}
	}

	if e.exempt[r.URL.Path] || loopbackHosts[hostOnly(r.Host)] {
		return Decision{}
	}

	return Decision{
		Redirect: true,
		Location: "https://" + r.Host + r.URL.RequestURI(),
	}
}

// isSecureRequest reports whether the request arrived over a secure
// transport, directly or via a TLS-terminating proxy.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}

	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		// Only the first hop counts when proxies append values.
		first, _, _ := strings.Cut(proto, ",")
		if strings.EqualFold(strings.TrimSpace(first), "https") {
			return true
		}
	}

	if ssl := r.Header.Get("X-Forwarded-Ssl"); strings.EqualFold(ssl, "on") {
		return true
	}

	return r.URL.Scheme == "https"
}

// hostOnly strips an optional port from a host header value.
func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}

	return strings.Trim(host, "[]")
}

// EnforceHTTPS creates a middleware that 301-redirects insecure production
// traffic to the HTTPS-upgraded URL. The redirect response itself carries
// Strict-Transport-Security so compliant clients stop asking over HTTP.
func EnforceHTTPS(enforcer *Enforcer, recorder audit.Recorder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := enforcer.Decide(r)
			if !decision.Redirect {
				next.ServeHTTP(w, r)

				return
			}

			logger.Info("redirecting insecure request",
				slog.String("host", r.Host),
				slog.String("path", r.URL.Path),
				slog.String("location", decision.Location),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			if recorder != nil {
				recorder.Record(r.Context(), audit.Event{
					Kind:      audit.KindHTTPSRedirected,
					ClientKey: clientKey(r),
					Path:      r.URL.Path,
					Detail:    decision.Location,
					Mode:      enforcer.mode.String(),
				})
			}

			w.Header().Set("Strict-Transport-Security", hstsValue)
			http.Redirect(w, r, decision.Location, http.StatusMovedPermanently)
		})
	}
}
