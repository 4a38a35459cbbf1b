package audio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attendtrack/backend/internal/models"
)

const sessionColumns = `id, user_id, attendance_id, file_url, file_name, file_size, duration,
	to_char(recording_date, 'YYYY-MM-DD'), is_active, archive_url, created_at, updated_at`

// Repository persists audio directories and recording sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an audio repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// DirKeyFor derives the stable, human-browsable directory key for a user from
// name, employee code and user id. Deterministic so repeated resolution never
// produces a second key for the same user.
func DirKeyFor(fullName, employeeCode string, userID uuid.UUID) string {
	base := slugify(fullName)
	if base == "" {
		base = "user"
	}
	if code := slugify(employeeCode); code != "" {
		base = base + "-" + code
	}
	return base + "-" + strings.Split(userID.String(), "-")[0]
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// EnsureDirectory returns the user's audio directory, creating it lazily on
// first use. The key is never renamed once assigned.
func (r *Repository) EnsureDirectory(ctx context.Context, userID uuid.UUID) (*models.AudioDirectory, error) {
	const sel = `SELECT id, user_id, dir_key, created_at FROM audio_directories WHERE user_id = $1`
	var d models.AudioDirectory
	err := r.pool.QueryRow(ctx, sel, userID).Scan(&d.ID, &d.UserID, &d.DirKey, &d.CreatedAt)
	if err == nil {
		return &d, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	var fullName, employeeCode string
	if err := r.pool.QueryRow(ctx, `SELECT full_name, employee_code FROM users WHERE id = $1`, userID).
		Scan(&fullName, &employeeCode); err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	key := DirKeyFor(fullName, employeeCode, userID)

	const ins = `INSERT INTO audio_directories (user_id, dir_key) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET dir_key = audio_directories.dir_key
		RETURNING id, user_id, dir_key, created_at`
	if err := r.pool.QueryRow(ctx, ins, userID, key).Scan(&d.ID, &d.UserID, &d.DirKey, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSession(row pgx.Row) (*models.RecordingSession, error) {
	var s models.RecordingSession
	err := row.Scan(&s.ID, &s.UserID, &s.AttendanceID, &s.FileURL, &s.FileName, &s.FileSize,
		&s.Duration, &s.RecordingDate, &s.IsActive, &s.ArchiveURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionByUserDate returns the session for (user, day), or nil when absent.
func (r *Repository) GetSessionByUserDate(ctx context.Context, userID uuid.UUID, date string) (*models.RecordingSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE user_id = $1 AND recording_date = $2`
	s, err := scanSession(r.pool.QueryRow(ctx, q, userID, date))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// GetSessionByID returns a session by id.
func (r *Repository) GetSessionByID(ctx context.Context, id uuid.UUID) (*models.RecordingSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// ActivateSession creates or reactivates the day's row; the unique
// (user_id, recording_date) constraint guarantees at most one per user-day.
func (r *Repository) ActivateSession(ctx context.Context, userID uuid.UUID, attendanceID *uuid.UUID, date string) (*models.RecordingSession, error) {
	q := `INSERT INTO recording_sessions (user_id, attendance_id, recording_date, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (user_id, recording_date)
		DO UPDATE SET is_active = TRUE,
			attendance_id = COALESCE(EXCLUDED.attendance_id, recording_sessions.attendance_id),
			updated_at = NOW()
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, userID, attendanceID, date))
}

// RecordMerge points the session at the new master and credits the merged
// seconds. file_size reflects the on-disk master; duration only accumulates.
func (r *Repository) RecordMerge(ctx context.Context, id uuid.UUID, fileURL, fileName string, fileSize int64, addedSeconds float64) (*models.RecordingSession, error) {
	q := `UPDATE recording_sessions
		SET file_url = $1, file_name = $2, file_size = $3, duration = duration + $4, updated_at = NOW()
		WHERE id = $5
		RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, fileURL, fileName, fileSize, addedSeconds, id))
}

// AddDuration credits ingested seconds without touching the master pointer.
func (r *Repository) AddDuration(ctx context.Context, id uuid.UUID, addedSeconds float64) (*models.RecordingSession, error) {
	q := `UPDATE recording_sessions SET duration = duration + $1, updated_at = NOW()
		WHERE id = $2 RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, addedSeconds, id))
}

// StopSession freezes the session inactive with the finalized duration.
func (r *Repository) StopSession(ctx context.Context, id uuid.UUID, finalSeconds float64) (*models.RecordingSession, error) {
	q := `UPDATE recording_sessions
		SET is_active = FALSE, duration = GREATEST(duration, $1), updated_at = NOW()
		WHERE id = $2 RETURNING ` + sessionColumns
	return scanSession(r.pool.QueryRow(ctx, q, finalSeconds, id))
}

// SetArchiveURL stores the S3 archive location after upload.
func (r *Repository) SetArchiveURL(ctx context.Context, id uuid.UUID, url string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE recording_sessions SET archive_url = $1, updated_at = NOW() WHERE id = $2`, url, id)
	return err
}

// TotalSize sums file_size across all sessions.
func (r *Repository) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(file_size), 0) FROM recording_sessions`).Scan(&total)
	return total, err
}

// OldestSessionBefore returns the globally oldest session dated strictly
// before the given day, or nil when none exists.
func (r *Repository) OldestSessionBefore(ctx context.Context, date string) (*SessionWithDir, error) {
	q := `SELECT s.id, s.user_id, s.attendance_id, s.file_url, s.file_name, s.file_size, s.duration,
			to_char(s.recording_date, 'YYYY-MM-DD'), s.is_active, s.archive_url, s.created_at, s.updated_at,
			COALESCE(d.dir_key, '')
		FROM recording_sessions s
		LEFT JOIN audio_directories d ON d.user_id = s.user_id
		WHERE s.recording_date < $1
		ORDER BY s.created_at ASC LIMIT 1`
	var out SessionWithDir
	s := &out.Session
	err := r.pool.QueryRow(ctx, q, date).Scan(&s.ID, &s.UserID, &s.AttendanceID, &s.FileURL, &s.FileName,
		&s.FileSize, &s.Duration, &s.RecordingDate, &s.IsActive, &s.ArchiveURL, &s.CreatedAt, &s.UpdatedAt, &out.DirKey)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// ListExpired returns sessions created before the cutoff.
func (r *Repository) ListExpired(ctx context.Context, cutoff time.Time) ([]SessionWithDir, error) {
	q := `SELECT s.id, s.user_id, s.attendance_id, s.file_url, s.file_name, s.file_size, s.duration,
			to_char(s.recording_date, 'YYYY-MM-DD'), s.is_active, s.archive_url, s.created_at, s.updated_at,
			COALESCE(d.dir_key, '')
		FROM recording_sessions s
		LEFT JOIN audio_directories d ON d.user_id = s.user_id
		WHERE s.created_at < $1
		ORDER BY s.created_at ASC`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []SessionWithDir
	for rows.Next() {
		var out SessionWithDir
		s := &out.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.AttendanceID, &s.FileURL, &s.FileName, &s.FileSize,
			&s.Duration, &s.RecordingDate, &s.IsActive, &s.ArchiveURL, &s.CreatedAt, &s.UpdatedAt, &out.DirKey); err != nil {
			return nil, err
		}
		list = append(list, out)
	}
	return list, rows.Err()
}

// DeleteSession removes the row; returns false when it was already gone
// (a concurrent pass won the race, not an error).
func (r *Repository) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recording_sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountByUser returns the user's remaining session count.
func (r *Repository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recording_sessions WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

// ListAll returns all sessions with directory keys, newest first (admin view).
func (r *Repository) ListAll(ctx context.Context) ([]SessionWithDir, error) {
	q := `SELECT s.id, s.user_id, s.attendance_id, s.file_url, s.file_name, s.file_size, s.duration,
			to_char(s.recording_date, 'YYYY-MM-DD'), s.is_active, s.archive_url, s.created_at, s.updated_at,
			COALESCE(d.dir_key, '')
		FROM recording_sessions s
		LEFT JOIN audio_directories d ON d.user_id = s.user_id
		ORDER BY s.created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []SessionWithDir
	for rows.Next() {
		var out SessionWithDir
		s := &out.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.AttendanceID, &s.FileURL, &s.FileName, &s.FileSize,
			&s.Duration, &s.RecordingDate, &s.IsActive, &s.ArchiveURL, &s.CreatedAt, &s.UpdatedAt, &out.DirKey); err != nil {
			return nil, err
		}
		list = append(list, out)
	}
	return list, rows.Err()
}

// ListActive returns currently active sessions (admin "live" view).
func (r *Repository) ListActive(ctx context.Context) ([]models.RecordingSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE is_active = TRUE ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RecordingSession
	for rows.Next() {
		var s models.RecordingSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.AttendanceID, &s.FileURL, &s.FileName, &s.FileSize,
			&s.Duration, &s.RecordingDate, &s.IsActive, &s.ArchiveURL, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetDirKey returns the directory key for a user, or "" when none assigned.
func (r *Repository) GetDirKey(ctx context.Context, userID uuid.UUID) (string, error) {
	var key string
	err := r.pool.QueryRow(ctx, `SELECT dir_key FROM audio_directories WHERE user_id = $1`, userID).Scan(&key)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return key, nil
}
