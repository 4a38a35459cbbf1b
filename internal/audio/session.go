package audio

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendtrack/backend/internal/models"
)

// Tracker owns the one-active-recording-per-user-per-day invariant and the
// active/inactive transitions driven by check-in, check-out and admin stop.
type Tracker struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewTracker creates a session tracker.
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, now: time.Now, logger: logger}
}

// Activate creates or reactivates today's session on check-in. A second
// check-in on the same day reuses the existing row.
func (t *Tracker) Activate(ctx context.Context, userID uuid.UUID, attendanceID uuid.UUID) (*models.RecordingSession, error) {
	day := dayOf(t.now())
	sess, err := t.store.ActivateSession(ctx, userID, &attendanceID, day)
	if err != nil {
		return nil, err
	}
	t.logger.Info("recording session active",
		zap.String("user_id", userID.String()),
		zap.String("date", day),
		zap.String("session_id", sess.ID.String()))
	return sess, nil
}

// Stop freezes today's session on check-out. Duration is finalized from the
// accumulated merged total; wall-clock session length is only a last-resort
// estimate when no audio was ever merged.
func (t *Tracker) Stop(ctx context.Context, userID uuid.UUID, wallClock time.Duration) (*models.RecordingSession, error) {
	day := dayOf(t.now())
	sess, err := t.store.GetSessionByUserDate(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	return t.stop(ctx, sess, wallClock)
}

// StopByID freezes a specific session (admin stop).
func (t *Tracker) StopByID(ctx context.Context, id uuid.UUID) (*models.RecordingSession, error) {
	sess, err := t.store.GetSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.stop(ctx, sess, 0)
}

func (t *Tracker) stop(ctx context.Context, sess *models.RecordingSession, wallClock time.Duration) (*models.RecordingSession, error) {
	if !sess.IsActive {
		return sess, nil
	}
	final := sess.Duration
	if final == 0 && wallClock > 0 {
		final = wallClock.Seconds()
	}
	stopped, err := t.store.StopSession(ctx, sess.ID, final)
	if err != nil {
		return nil, err
	}
	t.logger.Info("recording session stopped",
		zap.String("session_id", sess.ID.String()),
		zap.Float64("duration", stopped.Duration))
	return stopped, nil
}
