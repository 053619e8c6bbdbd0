package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"homelab_bot/internal/db"
)

// ErrLockHeld means another process holds the migration lock and it is not
// stale. The caller should exit and retry later; there is no wait loop.
var ErrLockHeld = errors.New("migration lock held by another process")

// lockStaleAfter is the age past which a held lock is presumed abandoned by
// a crashed holder and force-released. A heuristic, not a liveness check:
// holders do not renew the lock.
const lockStaleAfter = 10 * time.Minute

// LockManager serializes migration runs across processes through the
// singleton row in schema_migrations_lock.
type LockManager struct {
	adapter db.Adapter
	logger  *slog.Logger
	now     func() time.Time
}

func NewLockManager(adapter db.Adapter, logger *slog.Logger) *LockManager {
	return &LockManager{
		adapter: adapter,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Acquire takes the lock for owner or fails. When the existing lock is older
// than lockStaleAfter it is force-released and acquisition retried exactly
// once.
func (m *LockManager) Acquire(ctx context.Context, owner string) error {
	ok, err := m.adapter.TryLock(ctx, owner, m.now())
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	if ok {
		m.logger.Info("migration lock acquired", "owner", owner)
		return nil
	}

	rec, err := m.adapter.CurrentLock(ctx)
	if err != nil {
		return fmt.Errorf("inspect migration lock: %w", err)
	}
	if rec != nil && m.now().Sub(rec.LockedAt) > lockStaleAfter {
		m.logger.Warn("force-releasing stale migration lock",
			"holder", rec.LockedBy, "locked_at", rec.LockedAt)
		// Delete only the row we inspected. A lock taken over by a third
		// process after the read above has a newer locked_at and survives.
		released, err := m.adapter.UnlockIf(ctx, rec.LockedAt)
		if err != nil {
			return fmt.Errorf("release stale migration lock: %w", err)
		}
		if released {
			ok, err = m.adapter.TryLock(ctx, owner, m.now())
			if err != nil {
				return fmt.Errorf("acquire migration lock: %w", err)
			}
			if ok {
				m.logger.Info("migration lock acquired", "owner", owner)
				return nil
			}
		}
		rec, err = m.adapter.CurrentLock(ctx)
		if err != nil {
			return fmt.Errorf("inspect migration lock: %w", err)
		}
	}

	holder := "unknown"
	if rec != nil {
		holder = rec.LockedBy
	}
	return fmt.Errorf("%w (held by %s)", ErrLockHeld, holder)
}

// Release drops the lock row unconditionally.
func (m *LockManager) Release(ctx context.Context, owner string) error {
	if err := m.adapter.Unlock(ctx); err != nil {
		return fmt.Errorf("release migration lock: %w", err)
	}
	m.logger.Info("migration lock released", "owner", owner)
	return nil
}
