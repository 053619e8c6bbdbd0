package db

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Execer is the subset of *sql.Tx and *sql.DB that ledger writes go through,
// so the caller controls transaction boundaries.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Adapter hides dialect differences between the supported engines. One is
// built per invocation by Open and shared by every component.
type Adapter interface {
	Provider() string
	Close() error
	DB() *sql.DB

	// EnsureSchema idempotently creates the ledger and lock tables.
	EnsureSchema(ctx context.Context) error
	// ListApplied returns every ledger row ordered by applied_at ascending.
	ListApplied(ctx context.Context) ([]LedgerEntry, error)
	// RecordApplied inserts a ledger row inside the caller's transaction.
	// applied_at is set by the database clock.
	RecordApplied(ctx context.Context, exec Execer, entry LedgerEntry) error
	// RemoveApplied deletes a ledger row inside the caller's transaction and
	// returns ErrNotFound when no row matched.
	RemoveApplied(ctx context.Context, exec Execer, id string) error

	// TryLock attempts to insert the singleton lock row and reports whether
	// this process now holds the lock.
	TryLock(ctx context.Context, owner string, at time.Time) (bool, error)
	// CurrentLock returns the lock row, or nil when the lock is free.
	CurrentLock(ctx context.Context) (*LockRecord, error)
	// Unlock unconditionally deletes the lock row.
	Unlock(ctx context.Context) error
	// UnlockIf deletes the lock row only while its locked_at still matches
	// the given timestamp, and reports whether a row was deleted. Callers
	// breaking a stale lock pass the timestamp they observed so a lock taken
	// over by another process in the meantime is left alone.
	UnlockIf(ctx context.Context, lockedAt time.Time) (bool, error)

	// SupportsLocalBackup reports whether a host-local dump of this target is
	// possible. Decided once at Open; managed cloud databases have no direct
	// host access.
	SupportsLocalBackup() bool
}

// Open builds an adapter for the given provider and DSN. Connections are
// established lazily on first use.
func Open(provider, dsn string) (Adapter, error) {
	switch strings.ToLower(provider) {
	case "postgres":
		cfg, err := pgconn.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres dsn: %w", err)
		}
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetMaxOpenConns(5)
		return &PostgresAdapter{db: sqlDB, localBackup: !managedHost(cfg.Host)}, nil
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		// Timestamps come back as time.Time regardless of what the caller's
		// DSN asked for.
		cfg.ParseTime = true
		sqlDB, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return nil, err
		}
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetMaxOpenConns(5)
		host := cfg.Addr
		if h, _, err := net.SplitHostPort(cfg.Addr); err == nil {
			host = h
		}
		return &MySQLAdapter{db: sqlDB, localBackup: !managedHost(host)}, nil
	case "sqlite":
		sqlDB, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
		// A single connection sidesteps sqlite writer contention.
		sqlDB.SetMaxOpenConns(1)
		return &SQLiteAdapter{db: sqlDB}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %s", provider)
	}
}

// managedHostSuffixes identifies hosted database products that cannot be
// dumped from this machine.
var managedHostSuffixes = []string{
	".rds.amazonaws.com",
	".neon.tech",
	".supabase.co",
	".psdb.cloud",
	".aivencloud.com",
}

func managedHost(host string) bool {
	host = strings.ToLower(host)
	for _, suffix := range managedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// SplitStatements breaks a SQL script into single statements to avoid driver
// differences around multi-statement execution. Semicolons inside quoted
// strings, dollar-quoted blocks ($$...$$ and $tag$...$tag$), line comments
// and block comments do not end a statement.
func SplitStatements(sqlText string) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	var (
		inSingle  bool
		inDouble  bool
		dollarTag string
	)
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case inSingle:
			current.WriteByte(c)
			if c == '\'' {
				inSingle = false
			}
		case inDouble:
			current.WriteByte(c)
			if c == '"' {
				inDouble = false
			}
		case dollarTag != "":
			if c == '$' && strings.HasPrefix(sqlText[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
			} else {
				current.WriteByte(c)
			}
		case c == '-' && strings.HasPrefix(sqlText[i:], "--"):
			end := strings.IndexByte(sqlText[i:], '\n')
			if end < 0 {
				current.WriteString(sqlText[i:])
				i = len(sqlText)
			} else {
				current.WriteString(sqlText[i : i+end+1])
				i += end
			}
		case c == '/' && strings.HasPrefix(sqlText[i:], "/*"):
			end := strings.Index(sqlText[i:], "*/")
			if end < 0 {
				current.WriteString(sqlText[i:])
				i = len(sqlText)
			} else {
				current.WriteString(sqlText[i : i+end+2])
				i += end + 1
			}
		case c == '\'':
			inSingle = true
			current.WriteByte(c)
		case c == '"':
			inDouble = true
			current.WriteByte(c)
		case c == '$':
			if tag, ok := dollarQuoteStart(sqlText[i:]); ok {
				dollarTag = tag
				current.WriteString(tag)
				i += len(tag) - 1
			} else {
				current.WriteByte(c)
			}
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return out
}

// dollarQuoteStart reports whether s opens a dollar-quote delimiter and
// returns it ($$ or $tag$). A digit after the first $ means a positional
// parameter, not a delimiter.
func dollarQuoteStart(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	if '0' <= s[1] && s[1] <= '9' {
		return "", false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		isTagByte := c == '_' ||
			('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') ||
			('0' <= c && c <= '9')
		if !isTagByte {
			return "", false
		}
	}
	return "", false
}
