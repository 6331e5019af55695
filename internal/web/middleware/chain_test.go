package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestApplyOrder(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var order []string

	tag := func(name string) Option {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Apply(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			order = append(order, "handler")
			w.WriteHeader(http.StatusOK)
		}),
		tag("first"), tag("second"), tag("third"),
	)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"first", "second", "third", "handler"}
	for i, name := range want {
		if i >= len(order) || order[i] != name {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestRequestID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var seen string

	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" || seen == "unknown" {
			t.Errorf("request ID not generated, got %q", seen)
		}

		if rec.Header().Get("X-Request-ID") != seen {
			t.Error("request ID not echoed on the response")
		}
	})

	t.Run("preserves inbound ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "inbound-42")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "inbound-42" {
			t.Errorf("request ID = %q, want inbound-42", seen)
		}
	})
}

func TestRecovery(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	handler := Recovery(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clubs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != contentTypeProblemJSON {
		t.Errorf("Content-Type = %q, want %q", ct, contentTypeProblemJSON)
	}

	if strings.Contains(rec.Body.String(), "boom") {
		t.Error("panic value leaked into the response body")
	}
}
