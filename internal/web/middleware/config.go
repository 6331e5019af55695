package middleware

import (
	"fmt"
	"time"

	"github.com/bindery-io/bindery/internal/config"
)

// Config holds rate limiting settings loaded from the environment.
type Config struct {
	// Window is the fixed counting window length per client.
	Window time.Duration

	// MaxRequestsPerWindow is the per-client admission ceiling within a window.
	MaxRequestsPerWindow int

	// GlobalRPS throttles the instance as a whole. Zero disables the
	// global tier and leaves per-client limiting as the only admission gate.
	GlobalRPS int

	// GlobalBurst is the global tier's burst capacity. Zero derives it
	// from GlobalRPS.
	GlobalBurst int

	// SweepInterval controls how often expired client counters are reclaimed.
	SweepInterval time.Duration
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Window:               config.GetEnvDuration("BINDERY_RATE_WINDOW", defaultWindow),
		MaxRequestsPerWindow: config.GetEnvInt("BINDERY_RATE_MAX", defaultMaxPerWindow),
		GlobalRPS:            config.GetEnvInt("BINDERY_RATE_GLOBAL_RPS", 0),
		GlobalBurst:          config.GetEnvInt("BINDERY_RATE_GLOBAL_BURST", 0),
		SweepInterval:        config.GetEnvDuration("BINDERY_RATE_SWEEP_INTERVAL", rateLimitSweepInterval),
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.Window)
	}

	if c.MaxRequestsPerWindow <= 0 {
		return fmt.Errorf("max requests per window must be positive, got %d", c.MaxRequestsPerWindow)
	}

	if c.GlobalRPS < 0 {
		return fmt.Errorf("global RPS must not be negative, got %d", c.GlobalRPS)
	}

	return nil
}
