package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresAdapter struct {
	db          *sql.DB
	localBackup bool
}

func (p *PostgresAdapter) Provider() string { return "postgres" }

func (p *PostgresAdapter) Close() error { return p.db.Close() }

func (p *PostgresAdapter) DB() *sql.DB { return p.db }

func (p *PostgresAdapter) SupportsLocalBackup() bool { return p.localBackup }

func (p *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS schema_migrations (
	id varchar(255) PRIMARY KEY,
	filename varchar(255) NOT NULL,
	applied_at timestamptz NOT NULL DEFAULT now(),
	checksum varchar(128) NOT NULL,
	rollback_sql text
)`, `
CREATE TABLE IF NOT EXISTS schema_migrations_lock (
	lock_id int PRIMARY KEY CHECK (lock_id = 1),
	locked_at timestamptz NOT NULL,
	locked_by varchar(255) NOT NULL
)`}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure migration schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresAdapter) ListApplied(ctx context.Context) ([]LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
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

func (p *PostgresAdapter) RecordApplied(ctx context.Context, exec Execer, entry LedgerEntry) error {
	_, err := exec.ExecContext(ctx, `
INSERT INTO schema_migrations (id, filename, checksum, rollback_sql)
VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.Filename, entry.Checksum, nullString(entry.RollbackSQL))
	return err
}

func (p *PostgresAdapter) RemoveApplied(ctx context.Context, exec Execer, id string) error {
	res, err := exec.ExecContext(ctx, `DELETE FROM schema_migrations WHERE id = $1`, id)
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

func (p *PostgresAdapter) TryLock(ctx context.Context, owner string, at time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
INSERT INTO schema_migrations_lock (lock_id, locked_at, locked_by)
VALUES (1, $1, $2)
ON CONFLICT (lock_id) DO NOTHING`, at, owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresAdapter) CurrentLock(ctx context.Context) (*LockRecord, error) {
	var rec LockRecord
	err := p.db.QueryRowContext(ctx, `
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

func (p *PostgresAdapter) Unlock(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM schema_migrations_lock WHERE lock_id = 1`)
	return err
}

func (p *PostgresAdapter) UnlockIf(ctx context.Context, lockedAt time.Time) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
DELETE FROM schema_migrations_lock WHERE lock_id = 1 AND locked_at = $1`, lockedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullString(s sql.NullString) any {
	if s.Valid {
		return s.String
	}
	return nil
}
