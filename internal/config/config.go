package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Capture  CaptureConfig  `yaml:"capture"`
	Gate     GateConfig     `yaml:"gate"`
	Backend  BackendConfig  `yaml:"backend"`
	Settings SettingsConfig `yaml:"settings"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// CaptureConfig contains capture cadence and chunk pipeline parameters
type CaptureConfig struct {
	SampleRate      int     `yaml:"sample_rate"`
	ChunkDuration   float64 `yaml:"chunk_duration"`   // seconds
	ForwardInterval float64 `yaml:"forward_interval"` // seconds
	BufferCapacity  int     `yaml:"buffer_capacity"`
	IdleTimeout     int     `yaml:"idle_timeout"`     // seconds
	CleanupInterval int     `yaml:"cleanup_interval"` // seconds
}

// GateConfig contains speech gate configuration
type GateConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// BackendConfig contains recognition backend client configuration
type BackendConfig struct {
	BaseURL       string  `yaml:"base_url"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	RetryBase     float64 `yaml:"retry_base"` // seconds
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// SettingsConfig contains the language defaults used until the preference
// store says otherwise
type SettingsConfig struct {
	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Gate.Validate(); err != nil {
		return fmt.Errorf("gate config: %w", err)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend config: %w", err)
	}

	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("settings config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.SampleRate != 8000 && c.SampleRate != 16000 && c.SampleRate != 44100 && c.SampleRate != 48000 {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 44100, 48000], got %d", c.SampleRate)
	}

	if c.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", c.ChunkDuration)
	}

	if c.ForwardInterval <= 0 {
		return fmt.Errorf("forward_interval must be positive, got %f", c.ForwardInterval)
	}

	if c.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity must be at least 1, got %d", c.BufferCapacity)
	}

	if c.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", c.IdleTimeout)
	}

	if c.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", c.CleanupInterval)
	}

	return nil
}

// Validate validates gate configuration
func (g *GateConfig) Validate() error {
	if g.Threshold < 0 || g.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", g.Threshold)
	}

	return nil
}

// Validate validates backend configuration
func (b *BackendConfig) Validate() error {
	if b.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if !strings.HasPrefix(b.BaseURL, "http://") && !strings.HasPrefix(b.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got '%s'", b.BaseURL)
	}

	if b.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", b.Timeout)
	}

	if b.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", b.MaxRetries)
	}

	if b.RetryBase < 0 {
		return fmt.Errorf("retry_base cannot be negative, got %f", b.RetryBase)
	}

	if b.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", b.MaxConcurrent)
	}

	return nil
}

// Validate validates settings configuration
func (s *SettingsConfig) Validate() error {
	// Empty source means auto-detect; empty target means transcribe-only.
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the chunk duration as a time.Duration
func (c *CaptureConfig) GetChunkDuration() time.Duration {
	return time.Duration(c.ChunkDuration * float64(time.Second))
}

// GetForwardInterval returns the forward interval as a time.Duration
func (c *CaptureConfig) GetForwardInterval() time.Duration {
	return time.Duration(c.ForwardInterval * float64(time.Second))
}

// GetIdleTimeout returns the idle timeout as a time.Duration
func (c *CaptureConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Second
}

// GetCleanupInterval returns the cleanup interval as a time.Duration
func (c *CaptureConfig) GetCleanupInterval() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Second
}

// GetTimeoutDuration returns the backend timeout as a time.Duration
func (b *BackendConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

// GetRetryBaseDuration returns the retry backoff base as a time.Duration
func (b *BackendConfig) GetRetryBaseDuration() time.Duration {
	return time.Duration(b.RetryBase * float64(time.Second))
}
