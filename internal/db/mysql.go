package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type MySQLAdapter struct {
	db          *sql.DB
	localBackup bool
}

func (m *MySQLAdapter) Provider() string { return "mysql" }

func (m *MySQLAdapter) Close() error { return m.db.Close() }

func (m *MySQLAdapter) DB() *sql.DB { return m.db }

func (m *MySQLAdapter) SupportsLocalBackup() bool { return m.localBackup }

func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	// timestamp(6) keeps apply order distinguishable within one run.
	stmts := []string{`
CREATE TABLE IF NOT EXISTS schema_migrations (
	id varchar(255) PRIMARY KEY,
	filename varchar(255) NOT NULL,
	applied_at timestamp(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	checksum varchar(128) NOT NULL,
	rollback_sql text
) ENGINE=InnoDB`, `
CREATE TABLE IF NOT EXISTS schema_migrations_lock (
	lock_id int PRIMARY KEY CHECK (lock_id = 1),
	locked_at timestamp(6) NOT NULL,
	locked_by varchar(255) NOT NULL
) ENGINE=InnoDB`}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure migration schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) ListApplied(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
SELECT id, filename, applied_at, checksum, rollback_sql
FROM schema_migrations
ORDER BY applied_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ID, &e.Filename, &e.AppliedAt, &e.Checksum, &e.RollbackSQL); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) RecordApplied(ctx context.Context, exec Execer, entry LedgerEntry) error {
	_, err := exec.ExecContext(ctx, `
INSERT INTO schema_migrations (id, filename, checksum, rollback_sql)
VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Filename, entry.Checksum, nullString(entry.RollbackSQL))
	return err
}

func (m *MySQLAdapter) RemoveApplied(ctx context.Context, exec Execer, id string) error {
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

func (m *MySQLAdapter) TryLock(ctx context.Context, owner string, at time.Time) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
INSERT IGNORE INTO schema_migrations_lock (lock_id, locked_at, locked_by)
VALUES (1, ?, ?)`, at, owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (m *MySQLAdapter) CurrentLock(ctx context.Context) (*LockRecord, error) {
	var rec LockRecord
	err := m.db.QueryRowContext(ctx, `
SELECT lock_id, locked_at, locked_by FROM schema_migrations_lock WHERE lock_id = 1`).
		Scan(&rec.LockID, &rec.LockedAt, &rec.LockedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MySQLAdapter) Unlock(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM schema_migrations_lock WHERE lock_id = 1`)
	return err
}

func (m *MySQLAdapter) UnlockIf(ctx context.Context, lockedAt time.Time) (bool, error) {
	res, err := m.db.ExecContext(ctx, `
DELETE FROM schema_migrations_lock WHERE lock_id = 1 AND locked_at = ?`, lockedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
