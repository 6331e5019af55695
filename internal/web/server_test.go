package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bindery-io/bindery/internal/config"
	"github.com/bindery-io/bindery/internal/session"
	"github.com/bindery-io/bindery/internal/web/middleware"
)

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:               8080,
		Host:               "127.0.0.1",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization"},
		CORSMaxAge:         3600,
	}
}

func newTestServer(t *testing.T, mode config.RuntimeMode, limiter middleware.Limiter, store session.Store) *Server {
	t.Helper()

	return NewServer(testServerConfig(), mode, limiter, store, nil, nil)
}

func secureGet(target, clientIP string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "bindery.example.com"
	req.RemoteAddr = clientIP + ":40001"
	req.Header.Set("X-Forwarded-Proto", "https")

	return req
}

func TestPipelineRateLimitsFloods(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter := middleware.NewFixedWindowLimiter(&middleware.Config{
		Window:               time.Minute,
		MaxRequestsPerWindow: 100,
	})
	t.Cleanup(func() { _ = limiter.Close() })

	handler := newTestServer(t, config.Production, limiter, nil).Handler()

	// One client hammers a club page 101 times inside a single window.
	for i := 1; i <= 100; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, secureGet("/clubs/silent-patient", "1.2.3.4"))

		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d rejected, want the first 100 admitted", i)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, secureGet("/clubs/silent-patient", "1.2.3.4"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 101 status = %d, want 429", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "Rate limit exceeded") {
		t.Errorf("429 body = %q, want Rate limit exceeded message", rec.Body.String())
	}

	// Another reader on a different IP is served normally.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, secureGet("/healthz", "5.6.7.8"))

	if rec.Code != http.StatusOK {
		t.Errorf("independent client status = %d, want 200", rec.Code)
	}
}

func TestPipelineRedirectsInsecureTraffic(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := newTestServer(t, config.Production, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/account/settings?tab=profile", nil)
	req.Host = "bindery.example.com"
	req.RemoteAddr = "203.0.113.7:40001"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}

	want := "https://bindery.example.com/account/settings?tab=profile"
	if got := rec.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}

	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("redirect missing HSTS header")
	}

	// The upgraded request is served, not redirected again.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, secureGet("/version", "203.0.113.7"))

	if rec.Code != http.StatusOK {
		t.Errorf("upgraded request status = %d, want 200", rec.Code)
	}
}

func TestPipelineEmitsSingleCSP(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	app := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// A misbehaving application handler tries to set its own CSP.
		w.Header().Set("Content-Security-Policy", "default-src *")
		w.WriteHeader(http.StatusOK)
	})

	server := NewServer(testServerConfig(), config.Production, nil, nil, nil, app)
	handler := server.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, secureGet("/admin/members", "203.0.113.7"))

	values := rec.Header().Values("Content-Security-Policy")
	if len(values) != 1 {
		t.Fatalf("CSP header count = %d, want exactly 1", len(values))
	}

	if values[0] == "default-src *" {
		t.Error("application handler's CSP reached the wire")
	}

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("baseline hardening headers missing")
	}
}

func TestHealthAndVersionEndpoints(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := newTestServer(t, config.Development, nil, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}

	var health HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("healthz body not JSON: %v", err)
	}

	if health.Status != "healthy" || health.ServiceName != "bindery" {
		t.Errorf("healthz = %+v", health)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var version Version
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("version body not JSON: %v", err)
	}

	if version.ServiceName != "bindery" {
		t.Errorf("version = %+v", version)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("readyz without a store status = %d, want 200", rec.Code)
	}
}

func TestMixedContentEndpoint(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := newTestServer(t, config.Development, nil, nil).Handler()

	page := `<html><body>
		<img src="http://covers.example.com/silent-patient.jpg">
		<p>Visit http://example.com for details.</p>
	</body></html>`

	post := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(page))
		req.Header.Set("Content-Type", "text/html; charset=utf-8")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	t.Run("detect", func(t *testing.T) {
		rec := post("/api/v1/content/mixed-content")

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var response ScanResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("body not JSON: %v", err)
		}

		if !response.Report.HasIssues || len(response.Report.Issues) != 1 {
			t.Fatalf("report = %+v, want one image issue", response.Report)
		}

		if response.Report.Issues[0].Type != "image" {
			t.Errorf("issue type = %q, want image", response.Report.Issues[0].Type)
		}

		if response.Fixed != "" {
			t.Error("fixed markup returned without ?fix=true")
		}
	})

	t.Run("fix", func(t *testing.T) {
		rec := post("/api/v1/content/mixed-content?fix=true")

		var response ScanResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
			t.Fatalf("body not JSON: %v", err)
		}

		if !strings.Contains(response.Fixed, `src="https://covers.example.com/silent-patient.jpg"`) {
			t.Error("image source not upgraded to https")
		}

		// Visible prose is not a resource reference and stays untouched.
		if !strings.Contains(response.Fixed, "Visit http://example.com for details.") {
			t.Error("visible text was rewritten")
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/content/mixed-content", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestLogoutEndpoint(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := session.NewMemoryStore()
	handler := newTestServer(t, config.Development, nil, store).Handler()

	_, token, err := store.Create(context.Background(), "user-42", "member", time.Hour)
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	if rec.Header().Get("Clear-Site-Data") == "" {
		t.Error("logout response missing Clear-Site-Data")
	}

	var cleared bool

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == middleware.SessionCookieName && cookie.MaxAge < 0 {
			cleared = true
		}
	}

	if !cleared {
		t.Error("session cookie not cleared")
	}

	// The revoked token no longer resolves.
	if _, ok := store.Lookup(context.Background(), token); ok {
		t.Error("session still resolves after logout")
	}
}

func TestFallthroughWithoutApp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := newTestServer(t, config.Development, nil, nil).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clubs/silent-patient", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want problem+json", ct)
	}
}

func TestServerConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := testServerConfig()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid config: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ServerConfig)
	}{
		{"zero port", func(c *ServerConfig) { c.Port = 0 }},
		{"port too high", func(c *ServerConfig) { c.Port = 70000 }},
		{"empty host", func(c *ServerConfig) { c.Host = "" }},
		{"zero read timeout", func(c *ServerConfig) { c.ReadTimeout = 0 }},
		{"zero write timeout", func(c *ServerConfig) { c.WriteTimeout = 0 }},
		{"zero shutdown timeout", func(c *ServerConfig) { c.ShutdownTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testServerConfig()
			tt.mutate(cfg)

			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
