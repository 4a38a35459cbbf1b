package attendance

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendtrack/backend/internal/middleware"
	"github.com/attendtrack/backend/internal/models"
	"github.com/attendtrack/backend/pkg/response"
)

// RecordingControl toggles the caller's daily recording session on
// check-in/check-out. Implemented by the audio session tracker.
type RecordingControl interface {
	Activate(ctx context.Context, userID uuid.UUID, attendanceID uuid.UUID) (*models.RecordingSession, error)
	Stop(ctx context.Context, userID uuid.UUID, wallClock time.Duration) (*models.RecordingSession, error)
}

// Geofence is the check-in location gate.
type Geofence struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// CheckInRequest is the body for POST /attendance/check-in.
type CheckInRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
}

// Handler handles attendance HTTP endpoints.
type Handler struct {
	repo      *Repository
	recording RecordingControl
	fence     Geofence
	logger    *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(repo *Repository, recording RecordingControl, fence Geofence, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, recording: recording, fence: fence, logger: logger}
}

// CheckIn handles POST /attendance/check-in: GPS gate, open attendance,
// activate the day's recording session.
func (h *Handler) CheckIn(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if h.fence.RadiusMeters > 0 {
		dist := DistanceMeters(req.Latitude, req.Longitude, h.fence.Latitude, h.fence.Longitude)
		if dist > h.fence.RadiusMeters {
			response.Forbidden(c, "outside allowed check-in area")
			return
		}
	}

	if open, err := h.repo.GetOpen(c.Request.Context(), identity.UserID); err != nil {
		response.Internal(c, "failed to check attendance")
		return
	} else if open != nil {
		response.Conflict(c, "already checked in")
		return
	}

	att, err := h.repo.Create(c.Request.Context(), identity.UserID, req.Latitude, req.Longitude)
	if err != nil {
		h.logger.Error("check-in failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
		response.Internal(c, "check-in failed")
		return
	}

	session, err := h.recording.Activate(c.Request.Context(), identity.UserID, att.ID)
	if err != nil {
		h.logger.Error("recording activation failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
		response.Internal(c, "recording activation failed")
		return
	}

	response.Created(c, gin.H{"message": "checked in", "attendance": att, "recording": session})
}

// CheckOut handles POST /attendance/check-out: close the attendance and stop
// the day's recording session.
func (h *Handler) CheckOut(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	open, err := h.repo.GetOpen(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Internal(c, "failed to check attendance")
		return
	}
	if open == nil {
		response.BadRequest(c, "not checked in")
		return
	}

	att, err := h.repo.Close(c.Request.Context(), open.ID)
	if err != nil {
		h.logger.Error("check-out failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
		response.Internal(c, "check-out failed")
		return
	}

	session, err := h.recording.Stop(c.Request.Context(), identity.UserID, time.Since(open.CheckInAt))
	if err != nil {
		h.logger.Error("recording stop failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
		response.Internal(c, "recording stop failed")
		return
	}

	response.OK(c, gin.H{"message": "checked out", "attendance": att, "recording": session})
}

// Current handles GET /attendance/current: the caller's open attendance, if any.
func (h *Handler) Current(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	open, err := h.repo.GetOpen(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Internal(c, "failed to load attendance")
		return
	}
	response.OK(c, gin.H{"attendance": open})
}

// History handles GET /attendance/history.
func (h *Handler) History(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	list, err := h.repo.ListByUser(c.Request.Context(), identity.UserID, 50)
	if err != nil {
		response.Internal(c, "failed to load attendance history")
		return
	}
	response.OK(c, gin.H{"attendances": list})
}
