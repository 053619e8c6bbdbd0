package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"homelab_bot/internal/db"
)

type Status string

const (
	StatusCreated Status = "created"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports what happened to a backup attempt. Callers can branch on
// Status without parsing logs; nothing here is ever fatal to a migration
// run.
type Result struct {
	Status Status
	Path   string
	Reason string
	Err    error
}

// Coordinator takes one best-effort dump of the target database before a
// batch of schema changes.
type Coordinator struct {
	adapter db.Adapter
	dsn     string
	dir     string
	logger  *slog.Logger
	now     func() time.Time
}

func NewCoordinator(adapter db.Adapter, dsn, dir string, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		adapter: adapter,
		dsn:     dsn,
		dir:     dir,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create dumps the database into a timestamped file under the backup
// directory. Backends without host-local dump access are skipped; dump
// failures are reported, not propagated.
func (c *Coordinator) Create(ctx context.Context) Result {
	if !c.adapter.SupportsLocalBackup() {
		reason := fmt.Sprintf("%s target has no host-local dump access", c.adapter.Provider())
		c.logger.Warn("backup skipped", "reason", reason)
		return Result{Status: StatusSkipped, Reason: reason}
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("backup failed", "error", err)
		return Result{Status: StatusFailed, Reason: "create backup directory", Err: err}
	}

	stamp := fmt.Sprintf("%s_%s", c.now().Format("20060102_150405"), uuid.NewString()[:8])

	var (
		path string
		err  error
	)
	switch c.adapter.Provider() {
	case "postgres":
		path = filepath.Join(c.dir, "backup_"+stamp+".sql")
		err = c.runDump(ctx, "pg_dump", []string{"--no-owner", "--dbname", c.dsn, "--file", path}, nil)
	case "mysql":
		path = filepath.Join(c.dir, "backup_"+stamp+".sql")
		var args []string
		var extraEnv []string
		args, extraEnv, err = mysqlDumpArgs(c.dsn, path)
		if err == nil {
			err = c.runDump(ctx, "mysqldump", args, extraEnv)
		}
	case "sqlite":
		path = filepath.Join(c.dir, "backup_"+stamp+".db")
		err = copyFile(sqliteFilePath(c.dsn), path)
	default:
		reason := fmt.Sprintf("no dump strategy for provider %s", c.adapter.Provider())
		c.logger.Warn("backup skipped", "reason", reason)
		return Result{Status: StatusSkipped, Reason: reason}
	}

	if err != nil {
		c.logger.Warn("backup failed, migrations continue", "error", err)
		return Result{Status: StatusFailed, Reason: "dump failed", Err: err}
	}
	c.logger.Info("backup created", "path", path)
	return Result{Status: StatusCreated, Path: path}
}

func (c *Coordinator) runDump(ctx context.Context, name string, args, extraEnv []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// mysqlDumpArgs derives mysqldump flags from the DSN. The password travels
// through MYSQL_PWD to stay off the process argument list.
func mysqlDumpArgs(dsn, outFile string) ([]string, []string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	host, port := cfg.Addr, "3306"
	if h, p, err := net.SplitHostPort(cfg.Addr); err == nil {
		host, port = h, p
	}
	args := []string{
		"--host", host,
		"--port", port,
		"--user", cfg.User,
		"--single-transaction",
		"--result-file", outFile,
		cfg.DBName,
	}
	var extraEnv []string
	if cfg.Passwd != "" {
		extraEnv = append(extraEnv, "MYSQL_PWD="+cfg.Passwd)
	}
	return args, extraEnv, nil
}

// sqliteFilePath strips DSN decoration down to the database file path.
func sqliteFilePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
