package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config carries everything the migrator needs; all of it comes from the
// environment so the bot's deploy scripts and the CLI share one setup.
type Config struct {
	DatabaseURL   string `env:"BOT_DB_DSN"`
	Provider      string `env:"BOT_DB_PROVIDER" envDefault:"postgres"`
	MigrationsDir string `env:"BOT_MIGRATIONS_DIR" envDefault:"migrations"`
	BackupDir     string `env:"BOT_BACKUP_DIR" envDefault:"backups"`
	LockOwner     string `env:"BOT_LOCK_OWNER"`
	LogLevel      string `env:"BOT_LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"BOT_LOG_FORMAT" envDefault:"text"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.LockOwner == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "unknown"
		}
		cfg.LockOwner = host
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("BOT_DB_DSN is required")
	}
	switch c.Provider {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported BOT_DB_PROVIDER %q (postgres, mysql or sqlite)", c.Provider)
	}
	return nil
}
