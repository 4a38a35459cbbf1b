package audio

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/attendtrack/backend/internal/models"
)

// SessionWithDir pairs a recording session with its owner's directory key,
// which the enforcer needs to locate backing files.
type SessionWithDir struct {
	Session models.RecordingSession
	DirKey  string
}

// Store is the persistence surface the audio pipeline consumes. Implemented
// by Repository; tests substitute an in-memory fake.
type Store interface {
	// EnsureDirectory resolves the user's stable audio directory key,
	// creating the row on first use.
	EnsureDirectory(ctx context.Context, userID uuid.UUID) (*models.AudioDirectory, error)

	// GetSessionByUserDate returns the session for (user, day), or nil.
	GetSessionByUserDate(ctx context.Context, userID uuid.UUID, date string) (*models.RecordingSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (*models.RecordingSession, error)

	// ActivateSession creates or reactivates the single per-(user, day) row.
	ActivateSession(ctx context.Context, userID uuid.UUID, attendanceID *uuid.UUID, date string) (*models.RecordingSession, error)

	// RecordMerge updates the master pointer and size and credits the merged
	// segment's seconds; duration only ever increases.
	RecordMerge(ctx context.Context, id uuid.UUID, fileURL, fileName string, fileSize int64, addedSeconds float64) (*models.RecordingSession, error)

	// AddDuration credits seconds without touching the master pointer
	// (raw-fallback segments bypass the merge but still count as ingested audio).
	AddDuration(ctx context.Context, id uuid.UUID, addedSeconds float64) (*models.RecordingSession, error)

	// StopSession freezes the session inactive with the finalized duration.
	StopSession(ctx context.Context, id uuid.UUID, finalSeconds float64) (*models.RecordingSession, error)

	SetArchiveURL(ctx context.Context, id uuid.UUID, url string) error

	// TotalSize sums file_size across all sessions.
	TotalSize(ctx context.Context) (int64, error)
	// OldestSessionBefore returns the globally oldest session dated strictly
	// before the given day, or nil when no candidate exists.
	OldestSessionBefore(ctx context.Context, date string) (*SessionWithDir, error)
	// ListExpired returns sessions created before the cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]SessionWithDir, error)
	// DeleteSession removes the row; returns false when it was already gone.
	DeleteSession(ctx context.Context, id uuid.UUID) (bool, error)
	// CountByUser returns the user's remaining session count.
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}
