// Package config holds all configuration types and loading logic for agenda.
// Config structure never shrinks — fields are only added, never renamed or removed.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for an agendad instance.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	History   HistoryConfig   `yaml:"history"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// NodeConfig holds identity and network settings for this daemon instance.
type NodeConfig struct {
	// ID is a ULID string. Use "auto" to generate and persist one on first start.
	ID      string `yaml:"id"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

// SchedulerConfig controls the host tick loop.
type SchedulerConfig struct {
	// TickInterval is how often the update pass runs, e.g. "250ms", "1s".
	TickInterval string `yaml:"tick_interval"`
}

// Tick parses TickInterval. Validate guarantees it parses and is positive.
func (s SchedulerConfig) Tick() (time.Duration, error) {
	return time.ParseDuration(s.TickInterval)
}

// APIConfig sets rate limiting applied to the HTTP API.
type APIConfig struct {
	// MaxRate is requests per second across all clients.
	MaxRate int `yaml:"max_rate"`
	// Burst allows temporary spikes above MaxRate.
	Burst int `yaml:"burst"`
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// HistoryConfig controls the executed-event journal.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxRecent caps how many records GET /history returns per request.
	MaxRecent int `yaml:"max_recent"`
}

// WebhookConfig controls behaviour when pushing executed events to webhook
// subscribers.
type WebhookConfig struct {
	// RetryDelaysMs is the list of delays between successive retry attempts.
	RetryDelaysMs []int `yaml:"retry_delays_ms"`
	TimeoutMs     int   `yaml:"timeout_ms"`
}

// Default returns a Config populated with safe, sensible defaults.
// It is the canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ID:      "auto",
			Host:    "0.0.0.0",
			Port:    8080,
			DataDir: "./data",
		},
		Scheduler: SchedulerConfig{
			TickInterval: "250ms",
		},
		API: APIConfig{
			MaxRate: 1_000,
			Burst:   5_000,
		},
		Auth: AuthConfig{
			Enabled: false,
			APIKey:  "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		History: HistoryConfig{
			Enabled:   true,
			MaxRecent: 100,
		},
		Webhook: WebhookConfig{
			RetryDelaysMs: []int{1_000, 5_000, 30_000},
			TimeoutMs:     5_000,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist the default config is returned without error,
// making it easy to run agendad with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	AGENDA_AUTH_API_KEY — sets auth.api_key and enables auth (auth.enabled = true)
//	AGENDA_DATA_DIR     — sets node.data_dir
//	AGENDA_PORT         — sets node.port
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variable overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("AGENDA_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("AGENDA_DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("AGENDA_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.Node.Port = p
		}
	}
}

// Validate checks that the config values are consistent and within acceptable
// ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Node.Port < 1 || c.Node.Port > 65535 {
		return errors.New("node.port must be between 1 and 65535")
	}
	if c.Node.DataDir == "" {
		return errors.New("node.data_dir must not be empty")
	}
	tick, err := c.Scheduler.Tick()
	if err != nil {
		return fmt.Errorf("scheduler.tick_interval: %w", err)
	}
	if tick <= 0 {
		return errors.New("scheduler.tick_interval must be positive")
	}
	if c.API.MaxRate < 1 {
		return errors.New("api.max_rate must be at least 1")
	}
	if c.API.Burst < c.API.MaxRate {
		return errors.New("api.burst must be >= api.max_rate")
	}
	if c.History.MaxRecent < 1 {
		return errors.New("history.max_recent must be at least 1")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return errors.New("metrics.port must be between 1 and 65535")
	}
	if c.Webhook.TimeoutMs < 1 {
		return errors.New("webhook.timeout_ms must be at least 1")
	}
	return nil
}
