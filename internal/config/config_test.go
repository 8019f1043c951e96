package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:    8081,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Capture: CaptureConfig{
			SampleRate:      16000,
			ChunkDuration:   0.5,
			ForwardInterval: 0.5,
			BufferCapacity:  5,
			IdleTimeout:     120,
			CleanupInterval: 30,
		},
		Gate: GateConfig{
			Threshold: 0.01,
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000",
			Timeout:       15,
			MaxRetries:    3,
			RetryBase:     1.0,
			MaxConcurrent: 10,
		},
		Settings: SettingsConfig{
			SourceLanguage: "auto",
			TargetLanguage: "en",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between",
		},
		{
			name:   "http disabled skips port check",
			mutate: func(c *Config) { c.HTTP.Enabled = false; c.HTTP.Port = 0 },
		},
		{
			name:        "invalid sample rate",
			mutate:      func(c *Config) { c.Capture.SampleRate = 12345 },
			expectError: true,
			errorMsg:    "sample_rate",
		},
		{
			name:        "zero forward interval",
			mutate:      func(c *Config) { c.Capture.ForwardInterval = 0 },
			expectError: true,
			errorMsg:    "forward_interval",
		},
		{
			name:        "zero buffer capacity",
			mutate:      func(c *Config) { c.Capture.BufferCapacity = 0 },
			expectError: true,
			errorMsg:    "buffer_capacity",
		},
		{
			name:        "gate threshold above one",
			mutate:      func(c *Config) { c.Gate.Threshold = 1.5 },
			expectError: true,
			errorMsg:    "threshold",
		},
		{
			name:   "gate threshold zero is valid",
			mutate: func(c *Config) { c.Gate.Threshold = 0 },
		},
		{
			name:        "empty backend url",
			mutate:      func(c *Config) { c.Backend.BaseURL = "" },
			expectError: true,
			errorMsg:    "base_url",
		},
		{
			name:        "backend url without scheme",
			mutate:      func(c *Config) { c.Backend.BaseURL = "localhost:8000" },
			expectError: true,
			errorMsg:    "http://",
		},
		{
			name:        "negative max retries",
			mutate:      func(c *Config) { c.Backend.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries",
		},
		{
			name:   "empty languages are valid",
			mutate: func(c *Config) { c.Settings = SettingsConfig{} },
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	content := `
http:
  port: 8081
  address: "0.0.0.0"
  enabled: true

capture:
  sample_rate: 16000
  chunk_duration: 0.5
  forward_interval: 0.5
  buffer_capacity: 5
  idle_timeout: 120
  cleanup_interval: 30

gate:
  threshold: 0.01

backend:
  base_url: "http://localhost:8000"
  timeout: 15
  max_retries: 3
  retry_base: 1.0
  max_concurrent: 10

settings:
  source_language: "auto"
  target_language: "en"

logging:
  level: "info"
  format: "json"
  output: "stdout"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("unexpected base_url: %q", cfg.Backend.BaseURL)
	}

	if cfg.Capture.GetForwardInterval() != 500*time.Millisecond {
		t.Errorf("unexpected forward interval: %v", cfg.Capture.GetForwardInterval())
	}

	if cfg.Backend.GetTimeoutDuration() != 15*time.Second {
		t.Errorf("unexpected backend timeout: %v", cfg.Backend.GetTimeoutDuration())
	}

	if cfg.Backend.GetRetryBaseDuration() != time.Second {
		t.Errorf("unexpected retry base: %v", cfg.Backend.GetRetryBaseDuration())
	}

	if cfg.Capture.GetIdleTimeout() != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %v", cfg.Capture.GetIdleTimeout())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http: [not a map"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: shouty\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error")
	}
}
