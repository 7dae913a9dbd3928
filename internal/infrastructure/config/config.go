// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Transport TransportConfig
	Autosave  AutosaveConfig
	Timer     TimerConfig
	Prefs     PrefsConfig
	Suites    SuitesConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StoreConfig holds backend store client configuration.
type StoreConfig struct {
	BaseURL string        `envconfig:"STORE_URL" default:"http://localhost:9000"`
	Timeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`
}

// TransportConfig holds realtime transport configuration.
type TransportConfig struct {
	GatewayURL       string        `envconfig:"TRANSPORT_URL" default:"ws://localhost:9100/realtime"`
	HandshakeTimeout time.Duration `envconfig:"TRANSPORT_HANDSHAKE_TIMEOUT" default:"10s"`
	FinalSaveTimeout time.Duration `envconfig:"TRANSPORT_FINAL_SAVE_TIMEOUT" default:"2s"`
}

// AutosaveConfig holds workspace autosave timings.
type AutosaveConfig struct {
	GraceWindow  time.Duration `envconfig:"AUTOSAVE_GRACE_WINDOW" default:"300ms"`
	Debounce     time.Duration `envconfig:"AUTOSAVE_DEBOUNCE" default:"100ms"`
	SavedDisplay time.Duration `envconfig:"AUTOSAVE_SAVED_DISPLAY" default:"2s"`
	WriteTimeout time.Duration `envconfig:"AUTOSAVE_WRITE_TIMEOUT" default:"5s"`
}

// TimerConfig holds timer poll configuration.
type TimerConfig struct {
	PollInterval time.Duration `envconfig:"TIMER_POLL_INTERVAL" default:"100ms"`
}

// PrefsConfig holds the durable preference store location.
type PrefsConfig struct {
	Path string `envconfig:"PREFS_PATH" default:"prefs.toml"`
}

// SuitesConfig holds persona suite definition location.
type SuitesConfig struct {
	Dir string `envconfig:"SUITES_DIR" default:"suites"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Store:  StoreConfig{BaseURL: "http://localhost:9000", Timeout: 10 * time.Second},
		Transport: TransportConfig{
			GatewayURL:       "ws://localhost:9100/realtime",
			HandshakeTimeout: 10 * time.Second,
			FinalSaveTimeout: 2 * time.Second,
		},
		Autosave: AutosaveConfig{
			GraceWindow:  300 * time.Millisecond,
			Debounce:     100 * time.Millisecond,
			SavedDisplay: 2 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Timer:   TimerConfig{PollInterval: 100 * time.Millisecond},
		Prefs:   PrefsConfig{Path: "prefs.toml"},
		Suites:  SuitesConfig{Dir: "suites"},
		Logging: LogConfig{Level: "info", Development: false},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
