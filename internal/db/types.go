package db

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a ledger row for the requested migration id
// does not exist.
var ErrNotFound = errors.New("migration not recorded in ledger")

// LedgerEntry is one row of the schema_migrations ledger. Rows are inserted
// when a migration is applied and deleted when it is rolled back; they are
// never updated.
type LedgerEntry struct {
	ID          string
	Filename    string
	AppliedAt   time.Time
	Checksum    string
	RollbackSQL sql.NullString
}

// LockRecord is the singleton row of the schema_migrations_lock table. Its
// presence is the lock.
type LockRecord struct {
	LockID   int
	LockedAt time.Time
	LockedBy string
}
