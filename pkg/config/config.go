// Package config loads and persists SDK configuration.
//
// Configuration lives in a JSON file (by default ~/.echoed/config.json) and
// individual fields can be overridden through ECHOED_* environment
// variables, which always win over file contents.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// DefaultSessionTimeoutSeconds is the idle gap after which a foreground
// transition counts as a new session.
const DefaultSessionTimeoutSeconds = 5

// GatewayConfig configures the optional websocket display-surface gateway.
type GatewayConfig struct {
	Host string `json:"host" env:"ECHOED_GATEWAY_HOST"`
	Port int    `json:"port" env:"ECHOED_GATEWAY_PORT"`
}

// Config holds everything needed to run the SDK.
type Config struct {
	APIKey    string `json:"api_key" env:"ECHOED_API_KEY"`
	CompanyID string `json:"company_id" env:"ECHOED_COMPANY_ID"`
	BaseURL   string `json:"base_url" env:"ECHOED_BASE_URL"`
	DataDir   string `json:"data_dir" env:"ECHOED_DATA_DIR"`

	// SessionTimeoutSeconds is the foreground/background gap that separates
	// two sessions. Zero means the default.
	SessionTimeoutSeconds int `json:"session_timeout_seconds,omitempty" env:"ECHOED_SESSION_TIMEOUT_SECONDS"`

	// SyncCron is an optional cron expression for periodic tag sync.
	// Empty disables the scheduler.
	SyncCron string `json:"sync_cron,omitempty" env:"ECHOED_SYNC_CRON"`

	LogLevel string `json:"log_level,omitempty" env:"ECHOED_LOG_LEVEL"`

	Gateway GatewayConfig `json:"gateway"`
}

// DefaultConfig returns a config with sane defaults and no credentials.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BaseURL:               "https://api.echoedhq.com",
		DataDir:               filepath.Join(home, ".echoed"),
		SessionTimeoutSeconds: DefaultSessionTimeoutSeconds,
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 8391,
		},
	}
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".echoed", "config.json")
}

// LoadConfig reads the config file at path, falling back to defaults when
// the file does not exist, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults + env only
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env overrides: %w", err)
	}

	if cfg.SessionTimeoutSeconds <= 0 {
		cfg.SessionTimeoutSeconds = DefaultSessionTimeoutSeconds
	}

	return cfg, nil
}

// SaveConfig writes cfg as indented JSON, creating parent directories.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Configured reports whether the credentials required for backend calls are
// present.
func (c *Config) Configured() bool {
	return c.APIKey != "" && c.CompanyID != ""
}
