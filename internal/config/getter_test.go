// Package config provides functions for reading config settings from ENV.
package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvStr(t *testing.T) {
	t.Setenv("BINDERY_TEST_STR", "value")

	if got := GetEnvStr("BINDERY_TEST_STR", "fallback"); got != "value" {
		t.Errorf("expected value, got %s", got)
	}

	if got := GetEnvStr("BINDERY_TEST_STR_MISSING", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("BINDERY_TEST_INT", "42")
	t.Setenv("BINDERY_TEST_INT_BAD", "not-a-number")

	if got := GetEnvInt("BINDERY_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	if got := GetEnvInt("BINDERY_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("expected fallback 7 for unparseable value, got %d", got)
	}

	if got := GetEnvInt("BINDERY_TEST_INT_MISSING", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"TRUE", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"maybe", true, true}, // unrecognized falls back
	}

	for _, tt := range tests {
		t.Setenv("BINDERY_TEST_BOOL", tt.value)

		if got := GetEnvBool("BINDERY_TEST_BOOL", tt.defaultValue); got != tt.want {
			t.Errorf("GetEnvBool(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("BINDERY_TEST_DURATION", "90s")

	if got := GetEnvDuration("BINDERY_TEST_DURATION", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}

	if got := GetEnvDuration("BINDERY_TEST_DURATION_MISSING", time.Minute); got != time.Minute {
		t.Errorf("expected fallback 1m, got %v", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	t.Setenv("BINDERY_TEST_LOG_LEVEL", "warn")

	if got := GetEnvLogLevel("BINDERY_TEST_LOG_LEVEL", slog.LevelInfo); got != slog.LevelWarn {
		t.Errorf("expected warn, got %v", got)
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	got := ParseCommaSeparatedList("a, b ,,c")
	want := []string{"a", "b", "c"}

	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestLoadRuntimeMode(t *testing.T) {
	tests := []struct {
		value string
		want  RuntimeMode
	}{
		{"production", Production},
		{"prod", Production},
		{"PRODUCTION", Production},
		{"development", Development},
		{"staging", Development}, // unknown values stay safe
		{"", Development},
	}

	for _, tt := range tests {
		t.Setenv(ModeEnvVar, tt.value)

		if got := LoadRuntimeMode(); got != tt.want {
			t.Errorf("LoadRuntimeMode(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestRuntimeModePredicates(t *testing.T) {
	if !Production.IsProduction() || Production.IsDevelopment() {
		t.Error("Production mode predicates inconsistent")
	}

	if Development.IsProduction() || !Development.IsDevelopment() {
		t.Error("Development mode predicates inconsistent")
	}
}
