package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Liveness sweep period for the connection monitor.
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL" default:"30s"`

	// Self-ping target to keep the hosting platform from idling the process.
	// Disabled when empty.
	KeepaliveURL      string        `env:"KEEPALIVE_URL"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" default:"10m"`

	MaxConnections       int64   `env:"MAX_CONNECTIONS" default:"10000"`
	MaxClientsPerAccount int     `env:"MAX_CLIENTS_PER_ACCOUNT" default:"50"`
	ConnRatePerSecond    float64 `env:"CONN_RATE_PER_SECOND" default:"10"`
	ConnRateBurst        int     `env:"CONN_RATE_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.MonitorInterval < time.Second {
		return fmt.Errorf("MONITOR_INTERVAL must be at least 1s, got %s", cfg.MonitorInterval)
	}
	if cfg.KeepaliveURL != "" {
		u, err := url.Parse(cfg.KeepaliveURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("KEEPALIVE_URL must be an absolute URL, got %q", cfg.KeepaliveURL)
		}
		if cfg.KeepaliveInterval < time.Minute {
			return fmt.Errorf("KEEPALIVE_INTERVAL must be at least 1m, got %s", cfg.KeepaliveInterval)
		}
	}
	if cfg.MaxConnections <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got %d", cfg.MaxConnections)
	}
	if cfg.MaxClientsPerAccount <= 0 {
		return fmt.Errorf("MAX_CLIENTS_PER_ACCOUNT must be positive, got %d", cfg.MaxClientsPerAccount)
	}
	return nil
}
