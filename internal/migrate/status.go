package migrate

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"homelab_bot/internal/db"
)

// Reporter prints the applied/pending state of every discovered migration.
// It never takes the migration lock, so status stays observable while a run
// is in progress (counts can be transiently stale).
type Reporter struct {
	adapter db.Adapter
	fsys    fs.FS
}

func NewReporter(adapter db.Adapter, fsys fs.FS) *Reporter {
	return &Reporter{adapter: adapter, fsys: fsys}
}

func (r *Reporter) Report(ctx context.Context, w io.Writer) error {
	if err := r.adapter.EnsureSchema(ctx); err != nil {
		return err
	}

	discovered, err := Discover(r.fsys)
	if err != nil {
		return err
	}
	applied, err := r.adapter.ListApplied(ctx)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}

	byID := make(map[string]db.LedgerEntry, len(applied))
	for _, entry := range applied {
		byID[entry.ID] = entry
	}

	appliedCount, pendingCount := 0, 0
	for _, m := range discovered {
		if entry, ok := byID[m.ID]; ok {
			fmt.Fprintf(w, "applied  %-40s %s\n", m.Filename, entry.AppliedAt.Format(time.RFC3339))
			appliedCount++
		} else {
			fmt.Fprintf(w, "pending  %s\n", m.Filename)
			pendingCount++
		}
	}

	// Ledger rows whose source file has disappeared.
	discoveredIDs := make(map[string]bool, len(discovered))
	for _, m := range discovered {
		discoveredIDs[m.ID] = true
	}
	for _, entry := range applied {
		if !discoveredIDs[entry.ID] {
			fmt.Fprintf(w, "missing  %-40s applied %s, source file gone\n",
				entry.Filename, entry.AppliedAt.Format(time.RFC3339))
		}
	}

	fmt.Fprintf(w, "\n%d applied, %d pending\n", appliedCount, pendingCount)
	return nil
}
