package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	migrationsDir := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrationsDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(migrationsDir, "001_guilds.sql"),
		[]byte("CREATE TABLE guilds (id integer PRIMARY KEY);"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(migrationsDir, "002_tickets.sql"),
		[]byte("CREATE TABLE tickets (id integer PRIMARY KEY);"), 0o644))

	t.Setenv("BOT_DB_DSN", filepath.Join(dir, "bot.db"))
	t.Setenv("BOT_DB_PROVIDER", "sqlite")
	t.Setenv("BOT_MIGRATIONS_DIR", migrationsDir)
	t.Setenv("BOT_BACKUP_DIR", filepath.Join(dir, "backups"))
	t.Setenv("BOT_LOCK_OWNER", "test-runner")
	t.Setenv("BOT_LOG_LEVEL", "error")
	t.Setenv("BOT_LOG_FORMAT", "text")
	return dir
}

func TestRunWithoutArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), nil, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "migrator commands")
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"sideways"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "unknown command sideways")
}

func TestRunUpWithoutConfiguration(t *testing.T) {
	t.Setenv("BOT_DB_DSN", "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"up"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "BOT_DB_DSN")
}

func TestRunUpThenStatus(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"up"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "applied 2 migration(s)")

	stdout.Reset()
	stderr.Reset()
	code = run(ctx, []string{"status"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "2 applied, 0 pending")

	// Re-running up applies nothing and still succeeds.
	stdout.Reset()
	code = run(ctx, []string{"up"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "nothing to apply")
}

func TestRunDownOnEmptyLedger(t *testing.T) {
	setupEnv(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"down"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "no migrations have been applied")
}

func TestRunDownAfterUp(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"up"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	stdout.Reset()
	code = run(ctx, []string{"down"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "NOT reverted")

	stdout.Reset()
	code = run(ctx, []string{"status"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "1 applied, 1 pending")
}

func TestRunDownUnknownID(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"up"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	stderr.Reset()
	code = run(ctx, []string{"down", "-id", "999_ghost"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "999_ghost")
}
