package config

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.APIBase != "http://localhost:8080" {
		t.Errorf("Expected default api base 'http://localhost:8080', got '%s'", cfg.APIBase)
	}

	if cfg.StateDir != "" {
		t.Errorf("Expected journal disabled by default, got state dir '%s'", cfg.StateDir)
	}

	if cfg.MetricsFile != "" {
		t.Errorf("Expected no metrics file by default, got '%s'", cfg.MetricsFile)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("Expected default log level 'warn', got '%s'", cfg.LogLevel)
	}

	if cfg.JournalEnabled() {
		t.Error("Expected JournalEnabled to be false by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid, got: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VMDEBUG_API_BASE", "https://oma.example:8443")
	t.Setenv("VMDEBUG_STATE_DIR", "/var/lib/vmdebug")
	t.Setenv("VMDEBUG_METRICS_FILE", "/var/lib/node_exporter/vmdebug.prom")
	t.Setenv("VMDEBUG_LOG_LEVEL", "debug")
	t.Setenv("VMDEBUG_LOG_JSON", "true")

	cfg := LoadFromEnv()

	if cfg.APIBase != "https://oma.example:8443" {
		t.Errorf("Expected api base from env, got '%s'", cfg.APIBase)
	}

	if cfg.StateDir != "/var/lib/vmdebug" {
		t.Errorf("Expected state dir from env, got '%s'", cfg.StateDir)
	}

	if cfg.MetricsFile != "/var/lib/node_exporter/vmdebug.prom" {
		t.Errorf("Expected metrics file from env, got '%s'", cfg.MetricsFile)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.LogLevel)
	}

	if !cfg.LogJSON {
		t.Error("Expected LogJSON to be true")
	}

	if !cfg.JournalEnabled() {
		t.Error("Expected JournalEnabled with state dir set")
	}
}

func TestLoadFromEnvIgnoresEmpty(t *testing.T) {
	t.Setenv("VMDEBUG_API_BASE", "")
	t.Setenv("VMDEBUG_LOG_JSON", "no")

	cfg := LoadFromEnv()

	if cfg.APIBase != DefaultAPIBase {
		t.Errorf("Expected default api base, got '%s'", cfg.APIBase)
	}
	if cfg.LogJSON {
		t.Error("Expected LogJSON to stay false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "https base",
			modify:  func(c *Config) { c.APIBase = "https://10.0.100.1:8082/api" },
			wantErr: false,
		},
		{
			name:    "non-http scheme",
			modify:  func(c *Config) { c.APIBase = "ftp://localhost" },
			wantErr: true,
		},
		{
			name:    "missing host",
			modify:  func(c *Config) { c.APIBase = "http://" },
			wantErr: true,
		},
		{
			name:    "unparseable base",
			modify:  func(c *Config) { c.APIBase = "http://[::1" },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.LogLevel = "chatty" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "error"

	lvl, err := cfg.Level()
	if err != nil {
		t.Fatalf("Level() error = %v", err)
	}
	if lvl != zapcore.ErrorLevel {
		t.Errorf("Level() = %v, want error", lvl)
	}
}
