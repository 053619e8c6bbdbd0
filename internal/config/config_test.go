package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("BOT_DB_DSN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_DB_DSN")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_DB_DSN", "postgres://bot:pw@127.0.0.1:5432/bot")
	for _, key := range []string{
		"BOT_DB_PROVIDER", "BOT_MIGRATIONS_DIR", "BOT_BACKUP_DIR",
		"BOT_LOCK_OWNER", "BOT_LOG_LEVEL", "BOT_LOG_FORMAT",
	} {
		// t.Setenv snapshots the old value; unset so envDefault applies.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Provider)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, "backups", cfg.BackupDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.LockOwner, "lock owner falls back to the hostname")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("BOT_DB_DSN", "whatever")
	t.Setenv("BOT_DB_PROVIDER", "oracle")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_DB_PROVIDER")
}

func TestLoadExplicitValues(t *testing.T) {
	t.Setenv("BOT_DB_DSN", "bot.db")
	t.Setenv("BOT_DB_PROVIDER", "sqlite")
	t.Setenv("BOT_MIGRATIONS_DIR", "/srv/bot/migrations")
	t.Setenv("BOT_LOCK_OWNER", "deploy-runner-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Provider)
	assert.Equal(t, "/srv/bot/migrations", cfg.MigrationsDir)
	assert.Equal(t, "deploy-runner-2", cfg.LockOwner)
}
