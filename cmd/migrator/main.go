package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"homelab_bot/internal/backup"
	"homelab_bot/internal/config"
	"homelab_bot/internal/db"
	"homelab_bot/internal/logging"
	"homelab_bot/internal/migrate"
)

// command is one entry of the dispatch table. Commands return an exit code
// so dispatch is testable without spawning a process.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout, stderr io.Writer) int
}

func commands() []command {
	return []command{
		{"up", "apply all pending migrations", upCmd},
		{"down", "unmark a migration as applied (schema is not reverted)", downCmd},
		{"status", "print applied/pending state of every migration", statusCmd},
	}
}

func main() {
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 1
	}
	for _, cmd := range commands() {
		if cmd.name == args[0] {
			return cmd.run(ctx, args[1:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "unknown command %s\n", args[0])
	usage(stderr)
	return 1
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "migrator commands:")
	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %-8s- %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w, "\nConfiguration comes from the environment (BOT_DB_DSN is required).")
}

// engine bundles the wired components for one invocation.
type engine struct {
	cfg      config.Config
	adapter  db.Adapter
	executor *migrate.Executor
	reporter *migrate.Reporter
}

func newEngine() (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	adapter, err := db.Open(cfg.Provider, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	lock := migrate.NewLockManager(adapter, logger)
	backups := backup.NewCoordinator(adapter, cfg.DatabaseURL, cfg.BackupDir, logger)
	fsys := os.DirFS(cfg.MigrationsDir)

	return &engine{
		cfg:      cfg,
		adapter:  adapter,
		executor: migrate.NewExecutor(adapter, backups, lock, fsys, cfg.LockOwner, logger),
		reporter: migrate.NewReporter(adapter, fsys),
	}, nil
}

func (e *engine) close() {
	_ = e.adapter.Close()
}

func upCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flagSet("up", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	eng, err := newEngine()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer eng.close()

	n, err := eng.executor.Up(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	if n == 0 {
		fmt.Fprintln(stdout, "nothing to apply")
	} else {
		fmt.Fprintf(stdout, "applied %d migration(s)\n", n)
	}
	return 0
}

func downCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flagSet("down", stderr)
	id := fs.String("id", "", "migration id to unmark (default: last applied)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *id == "" && fs.NArg() > 0 {
		*id = fs.Arg(0)
	}

	eng, err := newEngine()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer eng.close()

	if err := eng.executor.Down(ctx, *id); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	fmt.Fprintln(stdout, "ledger entry removed; the schema change itself was NOT reverted")
	return 0
}

func statusCmd(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flagSet("status", stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}

	eng, err := newEngine()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer eng.close()

	// Read-only: a report failure is printed but does not change the exit
	// code.
	if err := eng.reporter.Report(ctx, stdout); err != nil {
		fmt.Fprintln(stderr, "error:", err)
	}
	return 0
}

func flagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
