package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bindery-io/bindery/internal/mixedcontent"
	"github.com/bindery-io/bindery/internal/web/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	maxScanBodyBytes   = 4 << 20 // 4 MB of HTML is plenty for a club page
)

type (
	// Version represents the version endpoint response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Mode        string `json:"mode"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// ScanResponse is the mixed-content endpoint response. Fixed is present
	// only when the caller asked for a rewrite.
	ScanResponse struct {
		Report mixedcontent.Report `json:"report"`
		Fixed  string              `json:"fixed,omitempty"`
	}
)

// ServiceVersion is set at build time via -ldflags.
var ServiceVersion = "dev"

// healthChecker is implemented by stores that can verify their backend.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// setupRoutes sets up all HTTP routes for the edge server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Ops endpoints; the HTTPS enforcer exempts these paths
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", s.handleVersion)

	// Content tooling for the page builder
	mux.HandleFunc("POST /api/v1/content/mixed-content", s.handleMixedContent)

	// Session termination
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)

	// Everything else belongs to the application behind the edge
	mux.HandleFunc("/", s.handleFallthrough)
}

// handleHealth returns basic liveness status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "bindery",
		Version:     ServiceVersion,
		Mode:        s.mode.String(),
		Uptime:      uptime,
	})
}

// handleReady responds to readiness probes with a session store health check.
//
// Response codes:
//   - 200 OK: ready to accept traffic
//   - 503 Service Unavailable: session store backend is unreachable
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	checker, ok := s.sessionStore.(healthChecker)
	if !ok {
		// Memory store or no store at all: nothing to probe.
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)

		if _, err := w.Write([]byte("ready")); err != nil {
			s.logger.Error("Failed to write ready response",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := checker.HealthCheck(ctx); err != nil {
		s.logger.Error("Session store health check failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusServiceUnavailable)

		if _, writeErr := w.Write([]byte("session store unavailable")); writeErr != nil {
			s.logger.Error("Failed to write unavailable response",
				slog.String("request_id", requestID),
				slog.String("error", writeErr.Error()),
			)
		}

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
	}
}

// handleVersion returns the service version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, Version{
		Version:     ServiceVersion,
		ServiceName: "bindery",
	})
}

// handleMixedContent scans posted HTML for insecure http:// resource
// references. With ?fix=true the response also carries the rewritten markup.
//
// Used by the page builder before publishing a club page: a page that loads
// cleanly over http breaks silently once the site is served over HTTPS.
func (s *Server) handleMixedContent(w http.ResponseWriter, r *http.Request) {
	if !hasHTMLContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be text/html"))

		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScanBodyBytes))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("Failed to read request body"))

		return
	}

	html := string(body)
	response := ScanResponse{Report: mixedcontent.Detect(html)}

	if r.URL.Query().Get("fix") == "true" {
		response.Fixed = mixedcontent.Fix(html)
	}

	s.writeJSON(w, r, http.StatusOK, response)
}

// handleLogout revokes the resolved session and clears the session cookie.
// An anonymous logout is a no-op success: the client already has no session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	if record, ok := middleware.GetSession(r.Context()); ok && s.sessionStore != nil {
		if err := s.sessionStore.Revoke(r.Context(), record.ID); err != nil {
			s.logger.Warn("Failed to revoke session on logout",
				slog.String("request_id", requestID),
				slog.String("session_id", record.ID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("Session revoked",
				slog.String("request_id", requestID),
				slog.String("session_id", record.ID),
				slog.String("user_id", record.UserID),
			)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.mode.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleFallthrough delegates unmatched routes to the application handler,
// or answers 404 when the edge runs standalone.
func (s *Server) handleFallthrough(w http.ResponseWriter, r *http.Request) {
	if s.app != nil {
		s.app.ServeHTTP(w, r)

		return
	}

	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writeJSON marshals and writes a JSON response, falling back to an RFC 7807
// error when encoding fails before any bytes hit the wire.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	requestID := middleware.GetRequestID(r.Context())

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("request_id", requestID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// hasHTMLContentType checks if Content-Type header starts with "text/html".
// This allows charset parameters (e.g., "text/html; charset=utf-8").
func hasHTMLContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "text/html")
}
