package models

import (
	"time"

	"github.com/google/uuid"
)

// Attendance status values.
const (
	AttendanceStatusOpen   = "open"
	AttendanceStatusClosed = "closed"
)

// Attendance is one work session: check-in (GPS gated) through check-out.
type Attendance struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	CheckInAt  time.Time  `json:"check_in_at"`
	CheckOutAt *time.Time `json:"check_out_at,omitempty"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}
