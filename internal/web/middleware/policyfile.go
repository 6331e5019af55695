package middleware

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bindery-io/bindery/internal/config"
)

// PolicyFile holds optional security policy overrides loaded from .bindery.yaml.
//
// Everything in it is additive to the built-in defaults: extra route class
// prefixes, extra HTTPS-exempt paths and the CORS origin allowlist.
type PolicyFile struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	RouteClasses map[string]string `yaml:"route_classes"`
	//nolint:tagliatelle
	HTTPSExemptPaths []string `yaml:"https_exempt_paths"`
	//nolint:tagliatelle
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// DefaultPolicyPath is the default location for the policy file.
// Hidden-file convention, same as .eslintrc and friends.
const DefaultPolicyPath = ".bindery.yaml"

// PolicyPathEnvVar is the environment variable name for a custom policy path.
const PolicyPathEnvVar = "BINDERY_POLICY_PATH"

// PolicyPath resolves the policy file location from the environment.
func PolicyPath() string {
	return config.GetEnvStr(PolicyPathEnvVar, DefaultPolicyPath)
}

// LoadPolicyFile loads policy overrides from a YAML file at the given path.
//
// Behavior:
//   - Returns empty policy (not error) if the file doesn't exist - overrides are optional
//   - Returns empty policy + logs warning if the YAML is invalid (graceful degradation)
//   - Returns the populated policy on success
//
// The server must be able to start without a policy file; every override has
// a safe built-in default.
func LoadPolicyFile(path string) *PolicyFile {
	policy := &PolicyFile{RouteClasses: make(map[string]string)}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Policy file not found, using built-in defaults",
				slog.String("path", path))

			return policy
		}

		slog.Warn("Failed to read policy file, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return policy
	}

	if len(data) == 0 {
		return policy
	}

	if err := yaml.Unmarshal(data, policy); err != nil {
		slog.Warn("Failed to parse policy file, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &PolicyFile{RouteClasses: make(map[string]string)}
	}

	if policy.RouteClasses == nil {
		policy.RouteClasses = make(map[string]string)
	}

	return policy
}
