package audio

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTrackerActivateReusesDayRow(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store, nil)
	tracker.now = fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))
	userID := uuid.New()

	first, err := tracker.Activate(context.Background(), userID, uuid.New())
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Equal(t, "2026-08-31", first.RecordingDate)

	// Second check-in the same day reuses the row instead of creating one.
	second, err := tracker.Activate(context.Background(), userID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// The original attendance link is kept.
	assert.Equal(t, first.AttendanceID, second.AttendanceID)
}

func TestTrackerStopFinalizesAccumulatedDuration(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store, nil)
	tracker.now = fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))
	userID := uuid.New()

	sess, err := tracker.Activate(context.Background(), userID, uuid.New())
	require.NoError(t, err)

	// Three minutes of audio merged over a slightly longer wall-clock span.
	_, err = store.AddDuration(context.Background(), sess.ID, 180)
	require.NoError(t, err)

	stopped, err := tracker.Stop(context.Background(), userID, 190*time.Second)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	assert.False(t, stopped.IsActive)
	// Merged audio wins over wall clock.
	assert.InDelta(t, 180, stopped.Duration, 0.001)
}

func TestTrackerStopWallClockFallback(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store, nil)
	tracker.now = fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))
	userID := uuid.New()

	_, err := tracker.Activate(context.Background(), userID, uuid.New())
	require.NoError(t, err)

	// No audio ever merged: the session span is the only estimate available.
	stopped, err := tracker.Stop(context.Background(), userID, 8*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	assert.InDelta(t, (8 * time.Hour).Seconds(), stopped.Duration, 0.001)
}

func TestTrackerStopWithoutSession(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store, nil)

	stopped, err := tracker.Stop(context.Background(), uuid.New(), time.Hour)
	require.NoError(t, err)
	assert.Nil(t, stopped)
}

func TestTrackerStopIdempotent(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store, nil)
	tracker.now = fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))
	userID := uuid.New()

	sess, err := tracker.Activate(context.Background(), userID, uuid.New())
	require.NoError(t, err)
	_, err = store.AddDuration(context.Background(), sess.ID, 120)
	require.NoError(t, err)

	first, err := tracker.Stop(context.Background(), userID, 10*time.Hour)
	require.NoError(t, err)
	// A repeated stop must not overwrite the finalized duration with a later,
	// larger wall clock.
	second, err := tracker.Stop(context.Background(), userID, 20*time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, first.Duration, second.Duration, 0.001)
	assert.False(t, second.IsActive)
}

func TestTrackerStopByID(t *testing.T) {
	store := newMemStore()
	tracker := NewTracker(store, nil)
	tracker.now = fixedClock(time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC))

	sess, err := tracker.Activate(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)

	stopped, err := tracker.StopByID(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.False(t, stopped.IsActive)

	_, err = tracker.StopByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
