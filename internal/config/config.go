// Package config loads evalflow configuration from an optional YAML file, an
// optional .env file and EVALFLOW_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "EVALFLOW_"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"EVENTS_"`
	Replay    ReplayConfig    `yaml:"replay" envPrefix:"REPLAY_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// BodyLimit is the maximum request body size in bytes
	BodyLimit int `yaml:"body_limit" env:"BODY_LIMIT"`
}

// StorageConfig selects and configures the store backend.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver   string         `yaml:"driver" env:"DRIVER"`
	Path     string         `yaml:"path" env:"PATH"`
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"PG_"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Database string `yaml:"database" env:"DATABASE"`
	User     string `yaml:"user" env:"USER"`
	// Password is only read from the environment
	Password string `yaml:"-" env:"PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns int32  `yaml:"min_conns" env:"MIN_CONNS"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level" env:"LEVEL"`
	// Format is text or json
	Format string `yaml:"format" env:"FORMAT"`
}

// EventsConfig configures notification delivery.
type EventsConfig struct {
	BufferSize      int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"DELIVERY_TIMEOUT"`
	// WebhookURL enables the webhook sink when set
	WebhookURL string `yaml:"webhook_url" env:"WEBHOOK_URL"`
	// WebhookRate is deliveries per second; 0 disables throttling
	WebhookRate  float64 `yaml:"webhook_rate" env:"WEBHOOK_RATE"`
	WebhookBurst int     `yaml:"webhook_burst" env:"WEBHOOK_BURST"`
}

// ReplayConfig configures the evaluation recompute job.
type ReplayConfig struct {
	// MaxConcurrency bounds how many evaluations are recomputed in parallel
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			BodyLimit:    1 << 20,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "evalflow",
				User:     "evalflow",
				SSLMode:  "prefer",
				MaxConns: 25,
				MinConns: 2,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Events: EventsConfig{
			BufferSize:      256,
			DeliveryTimeout: 10 * time.Second,
		},
		Replay: ReplayConfig{
			MaxConcurrency: 4,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "evalflow",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then EVALFLOW_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage.postgres.host is required for the postgres driver")
		}
		if c.Storage.Postgres.Port <= 0 || c.Storage.Postgres.Port > 65535 {
			return fmt.Errorf("storage.postgres.port must be between 1 and 65535 (got %d)", c.Storage.Postgres.Port)
		}
		if c.Storage.Postgres.MinConns > c.Storage.Postgres.MaxConns {
			return fmt.Errorf("storage.postgres.min_conns (%d) exceeds max_conns (%d)",
				c.Storage.Postgres.MinConns, c.Storage.Postgres.MaxConns)
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres (got %q)", c.Storage.Driver)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}

	if c.Server.BodyLimit <= 0 {
		return fmt.Errorf("server.body_limit must be positive (got %d)", c.Server.BodyLimit)
	}
	if c.Events.BufferSize < 1 || c.Events.BufferSize > 100000 {
		return fmt.Errorf("events.buffer_size must be between 1 and 100000 (got %d)", c.Events.BufferSize)
	}
	if c.Events.WebhookRate < 0 {
		return fmt.Errorf("events.webhook_rate must not be negative (got %g)", c.Events.WebhookRate)
	}
	if c.Replay.MaxConcurrency < 1 || c.Replay.MaxConcurrency > 64 {
		return fmt.Errorf("replay.max_concurrency must be between 1 and 64 (got %d)", c.Replay.MaxConcurrency)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Addr: %s, Driver: %s, Path: %s, Log: %s/%s, EventsBuffer: %d, Webhook: %t, Replay: %d, Telemetry: %t}",
		c.Server.Addr, c.Storage.Driver, c.Storage.Path, c.Log.Level, c.Log.Format,
		c.Events.BufferSize, c.Events.WebhookURL != "", c.Replay.MaxConcurrency, c.Telemetry.Enabled,
	)
}
