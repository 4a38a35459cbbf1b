package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendtrack/backend/internal/models"
)

// seedRecording creates a stored session with a master and a raw-fallback
// addendum on disk.
func seedRecording(t *testing.T, store *memStore, root, date string, createdAt time.Time, size int64) SessionWithDir {
	t.Helper()
	userID := uuid.New()
	dir, err := store.EnsureDirectory(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, dir.DirKey), 0750))

	require.NoError(t, os.WriteFile(filepath.Join(root, dir.DirKey, date+".mp3"), make([]byte, size), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, dir.DirKey, date+"_1000_raw.webm"), []byte("raw"), 0600))

	sess := models.RecordingSession{
		ID:            uuid.New(),
		UserID:        userID,
		FileName:      date + ".mp3",
		FileSize:      size,
		RecordingDate: date,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	store.seed(sess)
	return SessionWithDir{Session: sess, DirKey: dir.DirKey}
}

func newTestEnforcer(store Store, root string, maxBytes int64, maxAgeDays int, today time.Time) *Enforcer {
	e := NewEnforcer(store, root, maxBytes, maxAgeDays, nil)
	e.now = func() time.Time { return today }
	return e
}

func TestEnforceQuotaEvictsOldestFirst(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()
	today := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	oldest := seedRecording(t, store, root, "2026-08-28", today.AddDate(0, 0, -3), 600)
	middle := seedRecording(t, store, root, "2026-08-29", today.AddDate(0, 0, -2), 600)
	newest := seedRecording(t, store, root, "2026-08-30", today.AddDate(0, 0, -1), 600)

	// Cap admits two of the three.
	enforcer := newTestEnforcer(store, root, 1300, 30, today)
	require.NoError(t, enforcer.EnforceQuota(context.Background()))

	_, err := store.GetSessionByID(context.Background(), oldest.Session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSessionByID(context.Background(), middle.Session.ID)
	assert.NoError(t, err)
	_, err = store.GetSessionByID(context.Background(), newest.Session.ID)
	assert.NoError(t, err)

	// The evicted session's master and raw addendum are both gone.
	_, err = os.Stat(filepath.Join(root, oldest.DirKey, "2026-08-28.mp3"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, oldest.DirKey, "2026-08-28_1000_raw.webm"))
	assert.True(t, os.IsNotExist(err))

	// Survivors keep their files.
	_, err = os.Stat(filepath.Join(root, newest.DirKey, "2026-08-30.mp3"))
	assert.NoError(t, err)
}

func TestEnforceQuotaNeverEvictsToday(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()
	today := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	current := seedRecording(t, store, root, "2026-08-31", today, 5000)

	// Way over cap, but the only candidate is today's in-flight session.
	enforcer := newTestEnforcer(store, root, 100, 30, today)
	require.NoError(t, enforcer.EnforceQuota(context.Background()))

	_, err := store.GetSessionByID(context.Background(), current.Session.ID)
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, current.DirKey, "2026-08-31.mp3"))
	assert.NoError(t, err)
}

func TestEnforceQuotaDisabledWhenNoCap(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()
	today := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	old := seedRecording(t, store, root, "2026-08-01", today.AddDate(0, 0, -30), 1<<20)

	enforcer := newTestEnforcer(store, root, 0, 30, today)
	require.NoError(t, enforcer.EnforceQuota(context.Background()))

	_, err := store.GetSessionByID(context.Background(), old.Session.ID)
	assert.NoError(t, err)
}

func TestPurgeExpiredRemovesOnlyPastRetention(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()
	today := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	expired := seedRecording(t, store, root, "2026-07-01", today.AddDate(0, 0, -61), 100)
	fresh := seedRecording(t, store, root, "2026-08-20", today.AddDate(0, 0, -11), 100)

	enforcer := newTestEnforcer(store, root, 0, 30, today)
	removed, err := enforcer.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetSessionByID(context.Background(), expired.Session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetSessionByID(context.Background(), fresh.Session.ID)
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, expired.DirKey, "2026-07-01.mp3"))
	assert.True(t, os.IsNotExist(err))

	// Last session for that user: the empty directory goes too.
	_, err = os.Stat(filepath.Join(root, expired.DirKey))
	assert.True(t, os.IsNotExist(err))

	// A second pass finds nothing.
	removed, err = enforcer.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeleteSessionRemovesFilesAndRow(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()
	today := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	item := seedRecording(t, store, root, "2026-08-25", today.AddDate(0, 0, -6), 100)
	enforcer := newTestEnforcer(store, root, 0, 30, today)

	require.NoError(t, enforcer.DeleteSession(context.Background(), item))

	_, err := store.GetSessionByID(context.Background(), item.Session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(filepath.Join(root, item.DirKey))
	assert.True(t, os.IsNotExist(err))

	// Deleting again reports not found rather than succeeding silently.
	assert.ErrorIs(t, enforcer.DeleteSession(context.Background(), item), ErrNotFound)
}

func TestDeleteSessionAlreadyDeletedFileIsNotAnError(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()
	today := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	item := seedRecording(t, store, root, "2026-08-25", today.AddDate(0, 0, -6), 100)
	// Backing file vanished out of band (manual cleanup, disk swap).
	require.NoError(t, os.Remove(filepath.Join(root, item.DirKey, "2026-08-25.mp3")))

	enforcer := newTestEnforcer(store, root, 0, 30, today)
	assert.NoError(t, enforcer.DeleteSession(context.Background(), item))
}
