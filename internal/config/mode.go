// Package config provides functions for reading config settings from ENV.
package config

import "strings"

// RuntimeMode selects between development and production behavior.
//
// The mode is loaded once at startup and passed explicitly into every
// component that branches on it (rate limiting, HTTPS enforcement, HSTS/CSP
// strictness), rather than each component reading a global flag on its own.
type RuntimeMode string

const (
	// Development disables rate limiting and HTTPS enforcement for local work.
	Development RuntimeMode = "development"

	// Production enables the full security posture: rate limiting, HTTPS
	// redirects, HSTS and strict CSP.
	Production RuntimeMode = "production"
)

// ModeEnvVar is the environment variable that selects the runtime mode.
const ModeEnvVar = "BINDERY_ENV"

// LoadRuntimeMode reads the runtime mode from BINDERY_ENV.
// Unrecognized or missing values default to Development, so a misconfigured
// box never silently enables production redirects against plain-HTTP traffic.
func LoadRuntimeMode() RuntimeMode {
	switch strings.ToLower(strings.TrimSpace(GetEnvStr(ModeEnvVar, ""))) {
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// IsProduction reports whether the mode is Production.
func (m RuntimeMode) IsProduction() bool {
	return m == Production
}

// IsDevelopment reports whether the mode is Development.
func (m RuntimeMode) IsDevelopment() bool {
	return !m.IsProduction()
}

// String implements fmt.Stringer for logging.
func (m RuntimeMode) String() string {
	if m.IsProduction() {
		return string(Production)
	}

	return string(Development)
}
