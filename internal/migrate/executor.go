package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/google/uuid"

	"homelab_bot/internal/backup"
	"homelab_bot/internal/db"
)

// ErrNoneApplied means a rollback was requested on an empty ledger.
var ErrNoneApplied = errors.New("no migrations have been applied")

// Backupper is satisfied by backup.Coordinator.
type Backupper interface {
	Create(ctx context.Context) backup.Result
}

// Executor applies pending migrations in order and unmarks applied ones.
// All database access goes through the injected adapter; there is no
// process-wide connection state.
type Executor struct {
	adapter db.Adapter
	backups Backupper
	lock    *LockManager
	fsys    fs.FS
	owner   string
	logger  *slog.Logger
}

func NewExecutor(adapter db.Adapter, backups Backupper, lock *LockManager, fsys fs.FS, owner string, logger *slog.Logger) *Executor {
	return &Executor{
		adapter: adapter,
		backups: backups,
		lock:    lock,
		fsys:    fsys,
		owner:   owner,
		logger:  logger,
	}
}

// Up applies every pending migration strictly in source order, each in its
// own transaction. The first failure rolls back its own transaction, stops
// the queue and propagates; migrations committed before it stay applied.
// Returns the number of migrations applied.
func (e *Executor) Up(ctx context.Context) (int, error) {
	logger := e.logger.With("run_id", runID())

	if err := e.adapter.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	if err := e.lock.Acquire(ctx, e.owner); err != nil {
		return 0, err
	}
	defer func() {
		if err := e.lock.Release(ctx, e.owner); err != nil {
			logger.Error("lock release failed", "error", err)
		}
	}()

	discovered, err := Discover(e.fsys)
	if err != nil {
		return 0, err
	}
	applied, err := e.adapter.ListApplied(ctx)
	if err != nil {
		return 0, fmt.Errorf("list applied migrations: %w", err)
	}

	appliedIDs := make(map[string]bool, len(applied))
	for _, entry := range applied {
		appliedIDs[entry.ID] = true
	}
	var pending []Migration
	for _, m := range discovered {
		if !appliedIDs[m.ID] {
			pending = append(pending, m)
		}
	}

	if len(pending) == 0 {
		logger.Info("no pending migrations", "discovered", len(discovered))
		return 0, nil
	}
	logger.Info("applying pending migrations", "pending", len(pending))

	e.backupBatch(ctx, logger)

	count := 0
	for _, m := range pending {
		logger.Info("applying migration", "id", m.ID, "filename", m.Filename)
		if err := e.applyOne(ctx, m); err != nil {
			logger.Error("migration failed", "filename", m.Filename, "error", err)
			return count, fmt.Errorf("apply migration %s: %w", m.Filename, err)
		}
		count++
	}
	logger.Info("migrations applied", "count", count)
	return count, nil
}

// Down deletes the ledger row for id, or for the most recently applied
// migration when id is empty. Schema changes are NOT reverted: the row's
// rollback_sql is never executed, removing the row only unmarks the
// migration as applied.
func (e *Executor) Down(ctx context.Context, id string) error {
	logger := e.logger.With("run_id", runID())

	if err := e.adapter.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := e.lock.Acquire(ctx, e.owner); err != nil {
		return err
	}
	defer func() {
		if err := e.lock.Release(ctx, e.owner); err != nil {
			logger.Error("lock release failed", "error", err)
		}
	}()

	applied, err := e.adapter.ListApplied(ctx)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}

	var target db.LedgerEntry
	if id == "" {
		if len(applied) == 0 {
			return ErrNoneApplied
		}
		target = applied[len(applied)-1]
	} else {
		found := false
		for _, entry := range applied {
			if entry.ID == id {
				target = entry
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("migration %s: %w", id, db.ErrNotFound)
		}
	}

	e.backupBatch(ctx, logger)

	tx, err := e.adapter.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	if err := e.adapter.RemoveApplied(ctx, tx, target.ID); err != nil {
		return fmt.Errorf("remove ledger entry %s: %w", target.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger removal: %w", err)
	}

	logger.Warn("ledger entry removed; schema changes were NOT reverted",
		"id", target.ID, "filename", target.Filename)
	if target.RollbackSQL.Valid {
		logger.Warn("stored rollback sql was not executed", "id", target.ID)
	}
	return nil
}

// applyOne runs one migration body and its ledger insert in a single
// transaction.
func (e *Executor) applyOne(ctx context.Context, m Migration) error {
	tx, err := e.adapter.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range db.SplitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
	}

	entry := db.LedgerEntry{
		ID:       m.ID,
		Filename: m.Filename,
		Checksum: Checksum(m.SQL),
	}
	if err := e.adapter.RecordApplied(ctx, tx, entry); err != nil {
		return fmt.Errorf("record in ledger: %w", err)
	}
	return tx.Commit()
}

// backupBatch takes one best-effort backup for the whole batch. A skipped or
// failed backup is logged and never aborts the run.
func (e *Executor) backupBatch(ctx context.Context, logger *slog.Logger) {
	res := e.backups.Create(ctx)
	switch res.Status {
	case backup.StatusCreated:
		logger.Info("backup created", "path", res.Path)
	case backup.StatusSkipped:
		logger.Warn("backup skipped", "reason", res.Reason)
	case backup.StatusFailed:
		logger.Warn("backup failed, continuing", "reason", res.Reason, "error", res.Err)
	}
}

func runID() string {
	return uuid.NewString()
}
