package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteAdapter backs local and development deployments of the bot. Times
// are stored as unix milliseconds, sqlite has no timestamp type.
type SQLiteAdapter struct {
	db *sql.DB
}

func (s *SQLiteAdapter) Provider() string { return "sqlite" }

func (s *SQLiteAdapter) Close() error { return s.db.Close() }

func (s *SQLiteAdapter) DB() *sql.DB { return s.db }

// SupportsLocalBackup is always true: the database is a local file.
func (s *SQLiteAdapter) SupportsLocalBackup() bool { return true }

func (s *SQLiteAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS schema_migrations (
	id text PRIMARY KEY,
	filename text NOT NULL,
	applied_at integer NOT NULL DEFAULT (strftime('%s','now') * 1000),
	checksum text NOT NULL,
	rollback_sql text
)`, `
CREATE TABLE IF NOT EXISTS schema_migrations_lock (
	lock_id integer PRIMARY KEY CHECK (lock_id = 1),
	locked_at integer NOT NULL,
	locked_by text NOT NULL
)`}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure migration schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteAdapter) ListApplied(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, filename, applied_at, checksum, rollback_sql
FROM schema_migrations
ORDER BY applied_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var (
			e         LedgerEntry
			appliedAt int64
		)
		if err := rows.Scan(&e.ID, &e.Filename, &appliedAt, &e.Checksum, &e.RollbackSQL); err != nil {
			return nil, err
		}
		e.AppliedAt = time.UnixMilli(appliedAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteAdapter) RecordApplied(ctx context.Context, exec Execer, entry LedgerEntry) error {
	_, err := exec.ExecContext(ctx, `
INSERT INTO schema_migrations (id, filename, checksum, rollback_sql)
VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Filename, entry.Checksum, nullString(entry.RollbackSQL))
	return err
}

func (s *SQLiteAdapter) RemoveApplied(ctx context.Context, exec Execer, id string) error {
	res, err := exec.ExecContext(ctx, `DELETE FROM schema_migrations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteAdapter) TryLock(ctx context.Context, owner string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO schema_migrations_lock (lock_id, locked_at, locked_by)
VALUES (1, ?, ?)`, at.UnixMilli(), owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteAdapter) CurrentLock(ctx context.Context) (*LockRecord, error) {
	var (
		rec      LockRecord
		lockedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT lock_id, locked_at, locked_by FROM schema_migrations_lock WHERE lock_id = 1`).
		Scan(&rec.LockID, &lockedAt, &rec.LockedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.LockedAt = time.UnixMilli(lockedAt).UTC()
	return &rec, nil
}

func (s *SQLiteAdapter) Unlock(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schema_migrations_lock WHERE lock_id = 1`)
	return err
}

func (s *SQLiteAdapter) UnlockIf(ctx context.Context, lockedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM schema_migrations_lock WHERE lock_id = 1 AND locked_at = ?`, lockedAt.UnixMilli())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
