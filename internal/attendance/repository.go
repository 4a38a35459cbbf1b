package attendance

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/attendtrack/backend/internal/models"
)

// Repository handles attendance persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an open attendance for the user.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, lat, lng float64) (*models.Attendance, error) {
	const q = `INSERT INTO attendances (user_id, latitude, longitude, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, check_in_at, check_out_at, latitude, longitude, status, created_at`
	var a models.Attendance
	err := r.pool.QueryRow(ctx, q, userID, lat, lng, models.AttendanceStatusOpen).
		Scan(&a.ID, &a.UserID, &a.CheckInAt, &a.CheckOutAt, &a.Latitude, &a.Longitude, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetOpen returns the user's open attendance, or nil when none exists.
func (r *Repository) GetOpen(ctx context.Context, userID uuid.UUID) (*models.Attendance, error) {
	const q = `SELECT id, user_id, check_in_at, check_out_at, latitude, longitude, status, created_at
		FROM attendances WHERE user_id = $1 AND check_out_at IS NULL ORDER BY check_in_at DESC LIMIT 1`
	var a models.Attendance
	err := r.pool.QueryRow(ctx, q, userID).
		Scan(&a.ID, &a.UserID, &a.CheckInAt, &a.CheckOutAt, &a.Latitude, &a.Longitude, &a.Status, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// Close closes an open attendance.
func (r *Repository) Close(ctx context.Context, id uuid.UUID) (*models.Attendance, error) {
	const q = `UPDATE attendances SET check_out_at = NOW(), status = $1 WHERE id = $2
		RETURNING id, user_id, check_in_at, check_out_at, latitude, longitude, status, created_at`
	var a models.Attendance
	err := r.pool.QueryRow(ctx, q, models.AttendanceStatusClosed, id).
		Scan(&a.ID, &a.UserID, &a.CheckInAt, &a.CheckOutAt, &a.Latitude, &a.Longitude, &a.Status, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByUser returns the user's attendance history, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Attendance, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, check_in_at, check_out_at, latitude, longitude, status, created_at
		 FROM attendances WHERE user_id = $1 ORDER BY check_in_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Attendance
	for rows.Next() {
		var a models.Attendance
		if err := rows.Scan(&a.ID, &a.UserID, &a.CheckInAt, &a.CheckOutAt, &a.Latitude, &a.Longitude, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
