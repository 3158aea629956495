package config

import (
	"fmt"
	"net/url"
	"os"

	"go.uber.org/zap/zapcore"
)

// DefaultAPIBase is where the OMA API listens on an appliance.
const DefaultAPIBase = "http://localhost:8080"

// Config holds settings for a vmdebug invocation
type Config struct {
	// APIBase is the OMA API base URL. It is validated and reported but the
	// tool never connects to it.
	APIBase string

	// StateDir enables the run journal when non-empty
	StateDir string

	// MetricsFile enables a Prometheus textfile dump when non-empty
	MetricsFile string

	// LogLevel is any zap level name ("debug", "info", "warn", ...)
	LogLevel string

	// LogJSON switches stderr logging to the JSON encoder
	LogJSON bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBase:  DefaultAPIBase,
		LogLevel: "warn",
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if base := os.Getenv("VMDEBUG_API_BASE"); base != "" {
		cfg.APIBase = base
	}

	if dir := os.Getenv("VMDEBUG_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	}

	if path := os.Getenv("VMDEBUG_METRICS_FILE"); path != "" {
		cfg.MetricsFile = path
	}

	if level := os.Getenv("VMDEBUG_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if v := os.Getenv("VMDEBUG_LOG_JSON"); v != "" {
		cfg.LogJSON = v == "1" || v == "true" || v == "TRUE"
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil {
		return fmt.Errorf("invalid api base %q: %w", c.APIBase, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api base %q (scheme must be http or https)", c.APIBase)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid api base %q (missing host)", c.APIBase)
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Level parses LogLevel
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return lvl, nil
}

// JournalEnabled reports whether runs should be recorded
func (c *Config) JournalEnabled() bool {
	return c.StateDir != ""
}
