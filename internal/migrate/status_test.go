package migrate

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homelab_bot/internal/backup"
	"homelab_bot/internal/db"
)

func TestReportFreshDatabase(t *testing.T) {
	ctx := context.Background()
	adapter := openTestAdapter(t)
	reporter := NewReporter(adapter, threeMigrations())

	var out bytes.Buffer
	require.NoError(t, reporter.Report(ctx, &out))

	assert.Contains(t, out.String(), "pending  001_guilds.sql")
	assert.Contains(t, out.String(), "pending  002_tickets.sql")
	assert.Contains(t, out.String(), "pending  003_panels.sql")
	assert.Contains(t, out.String(), "0 applied, 3 pending")
}

func TestReportAfterPartialApply(t *testing.T) {
	ctx := context.Background()
	fsys := threeMigrations()
	adapter := openTestAdapter(t)

	backups := &stubBackupper{result: backup.Result{Status: backup.StatusSkipped, Reason: "test"}}
	lock := NewLockManager(adapter, discardLogger())
	exec := NewExecutor(adapter, backups, lock, fsys, "test-host", discardLogger())
	_, err := exec.Up(ctx)
	require.NoError(t, err)
	require.NoError(t, exec.Down(ctx, ""))

	var out bytes.Buffer
	require.NoError(t, NewReporter(adapter, fsys).Report(ctx, &out))

	assert.Contains(t, out.String(), "applied  001_guilds.sql")
	assert.Contains(t, out.String(), "applied  002_tickets.sql")
	assert.Contains(t, out.String(), "pending  003_panels.sql")
	assert.Contains(t, out.String(), "2 applied, 1 pending")
}

func TestReportDoesNotTakeLock(t *testing.T) {
	ctx := context.Background()
	adapter := openTestAdapter(t)
	reporter := NewReporter(adapter, threeMigrations())

	var out bytes.Buffer
	require.NoError(t, reporter.Report(ctx, &out))

	rec, err := adapter.CurrentLock(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestReportFlagsMissingSource(t *testing.T) {
	ctx := context.Background()
	adapter := openTestAdapter(t)
	require.NoError(t, adapter.RecordApplied(ctx, adapter.DB(), db.LedgerEntry{
		ID:       "000_removed",
		Filename: "000_removed.sql",
		Checksum: "abc",
	}))

	var out bytes.Buffer
	require.NoError(t, NewReporter(adapter, threeMigrations()).Report(ctx, &out))

	assert.Contains(t, out.String(), "missing  000_removed.sql")
	assert.Contains(t, out.String(), "0 applied, 3 pending")
}
