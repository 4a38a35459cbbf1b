package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioDirectory is a stable per-user storage namespace, created lazily on the
// first segment and never renamed once assigned.
type AudioDirectory struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	DirKey    string    `json:"dir_key"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordingSession is the single per-user-per-day recording row. At most one
// exists per (user_id, recording_date); a second check-in on the same day
// reactivates the existing row.
type RecordingSession struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	AttendanceID  *uuid.UUID `json:"attendance_id,omitempty"`
	FileURL       string     `json:"file_url,omitempty"`
	FileName      string     `json:"file_name,omitempty"`
	FileSize      int64      `json:"file_size"`
	Duration      float64    `json:"duration"` // cumulative merged seconds for the day; never decreases
	RecordingDate string     `json:"recording_date"` // YYYY-MM-DD
	IsActive      bool       `json:"is_active"`
	ArchiveURL    string     `json:"archive_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
