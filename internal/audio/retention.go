package audio

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Enforcer bounds total stored bytes (oldest-first eviction) and recording
// age (fixed retention window). Both passes are idempotent and safe to
// interleave with uploads: the quota pass never touches today's sessions, so
// it cannot race an in-flight merge.
type Enforcer struct {
	store         Store
	storageRoot   string
	maxTotalBytes int64
	maxAge        time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewEnforcer creates a retention enforcer.
func NewEnforcer(store Store, storageRoot string, maxTotalBytes int64, maxAgeDays int, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{
		store:         store,
		storageRoot:   storageRoot,
		maxTotalBytes: maxTotalBytes,
		maxAge:        time.Duration(maxAgeDays) * 24 * time.Hour,
		now:           time.Now,
		logger:        logger,
	}
}

// EnforceQuota evicts the globally oldest sessions until total stored bytes
// fit under the cap or no candidate remains. Called after each successful
// merge.
func (e *Enforcer) EnforceQuota(ctx context.Context) error {
	if e.maxTotalBytes <= 0 {
		return nil
	}
	total, err := e.store.TotalSize(ctx)
	if err != nil {
		return err
	}
	today := dayOf(e.now())
	for total > e.maxTotalBytes {
		oldest, err := e.store.OldestSessionBefore(ctx, today)
		if err != nil {
			return err
		}
		if oldest == nil {
			e.logger.Warn("over quota but no eviction candidate remains",
				zap.Int64("total_bytes", total), zap.Int64("cap_bytes", e.maxTotalBytes))
			return nil
		}
		e.removeBackingFiles(*oldest)
		deleted, err := e.store.DeleteSession(ctx, oldest.Session.ID)
		if err != nil {
			return err
		}
		if !deleted {
			// A concurrent pass already evicted it; not an error.
			e.logger.Debug("eviction skipped, session already deleted",
				zap.String("session_id", oldest.Session.ID.String()))
			continue
		}
		e.maybeRemoveDir(ctx, oldest.Session.UserID, oldest.DirKey)
		total -= oldest.Session.FileSize
		e.logger.Info("session evicted for quota",
			zap.String("session_id", oldest.Session.ID.String()),
			zap.String("date", oldest.Session.RecordingDate),
			zap.Int64("freed_bytes", oldest.Session.FileSize),
			zap.Int64("total_bytes", total))
	}
	return nil
}

// PurgeExpired deletes every session older than the retention window,
// regardless of the quota check. Returns the number of sessions removed.
func (e *Enforcer) PurgeExpired(ctx context.Context) (int, error) {
	if e.maxAge <= 0 {
		return 0, nil
	}
	cutoff := e.now().Add(-e.maxAge)
	expired, err := e.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range expired {
		e.removeBackingFiles(item)
		deleted, err := e.store.DeleteSession(ctx, item.Session.ID)
		if err != nil {
			return removed, err
		}
		if !deleted {
			continue
		}
		e.maybeRemoveDir(ctx, item.Session.UserID, item.DirKey)
		removed++
	}
	if removed > 0 {
		e.logger.Info("expired sessions purged", zap.Int("count", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// DeleteSession removes one session, its backing files, and the per-user
// directory when it was the last session (admin delete).
func (e *Enforcer) DeleteSession(ctx context.Context, item SessionWithDir) error {
	e.removeBackingFiles(item)
	deleted, err := e.store.DeleteSession(ctx, item.Session.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	e.maybeRemoveDir(ctx, item.Session.UserID, item.DirKey)
	return nil
}

// removeBackingFiles deletes the master and any raw-fallback addenda for the
// session's day. Best-effort: a missing file is not an error.
func (e *Enforcer) removeBackingFiles(item SessionWithDir) {
	if item.DirKey == "" {
		return
	}
	dir := filepath.Join(e.storageRoot, item.DirKey)
	matches, err := filepath.Glob(filepath.Join(dir, item.Session.RecordingDate+"*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove recording file", zap.String("path", m), zap.Error(err))
		}
	}
}

// maybeRemoveDir removes the user's directory when no sessions remain.
func (e *Enforcer) maybeRemoveDir(ctx context.Context, userID uuid.UUID, dirKey string) {
	if dirKey == "" {
		return
	}
	n, err := e.store.CountByUser(ctx, userID)
	if err != nil || n > 0 {
		return
	}
	// Remove only succeeds when the directory is empty; stray files keep it.
	_ = os.Remove(filepath.Join(e.storageRoot, dirKey))
}
