package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// IMAP account
	IMAPHost     string `env:"IMAP_HOST"` // resolved from IMAP_USERNAME when empty
	IMAPPort     int    `env:"IMAP_PORT" envDefault:"993"`
	IMAPUsername string `env:"IMAP_USERNAME,required"`
	IMAPPassword string `env:"IMAP_PASSWORD,required"`

	// Sync
	SyncFolder   string        `env:"SYNC_FOLDER" envDefault:"INBOX"`
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	SyncWindow   time.Duration `env:"SYNC_WINDOW" envDefault:"720h"` // last 30 days
	SyncLimit    int           `env:"SYNC_LIMIT" envDefault:"0"`     // 0 = no limit
	DialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailvault.db"`

	// Hooks
	HookTimeout time.Duration `env:"HOOK_TIMEOUT" envDefault:"10s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.SyncInterval < time.Second {
		return nil, fmt.Errorf("SYNC_INTERVAL must be at least 1s, got %s", cfg.SyncInterval)
	}

	return cfg, nil
}
