package audio

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendtrack/backend/internal/middleware"
	"github.com/attendtrack/backend/internal/models"
	"github.com/attendtrack/backend/pkg/queue"
	"github.com/attendtrack/backend/pkg/response"
	"github.com/attendtrack/backend/pkg/storage"
)

// AttendanceSource reports the caller's open attendance. Implemented by the
// attendance repository; the audio core only consumes the signal.
type AttendanceSource interface {
	GetOpen(ctx context.Context, userID uuid.UUID) (*models.Attendance, error)
}

// StopNotifier emits the "recording stopped" fact to connected listeners.
type StopNotifier interface {
	NotifyStop(userID, sessionID uuid.UUID)
}

// Handler handles the audio pipeline HTTP endpoints.
type Handler struct {
	repo       *Repository
	engine     *MergeEngine
	tracker    *Tracker
	enforcer   *Enforcer
	attendance AttendanceSource
	notifier   StopNotifier
	jobs       *queue.Queue // optional; nil disables archive enqueue
	logger     *zap.Logger
}

// NewHandler creates an audio handler.
func NewHandler(repo *Repository, engine *MergeEngine, tracker *Tracker, enforcer *Enforcer,
	attendance AttendanceSource, notifier StopNotifier, jobs *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:       repo,
		engine:     engine,
		tracker:    tracker,
		enforcer:   enforcer,
		attendance: attendance,
		notifier:   notifier,
		jobs:       jobs,
		logger:     logger,
	}
}

// Upload handles POST /audio/upload: multipart fields "audio" (blob) and
// "duration" (optional seconds hint). The segment is buffered to the user's
// directory, then transcoded and merged under the per-(user, day) lock.
func (h *Handler) Upload(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	open, err := h.attendance.GetOpen(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Internal(c, "failed to check attendance")
		return
	}
	if open == nil {
		response.BadRequest(c, "no active attendance")
		return
	}

	file, err := c.FormFile("audio")
	if err != nil {
		response.BadRequest(c, "audio file is required")
		return
	}
	var hint float64
	if v := c.PostForm("duration"); v != "" {
		hint, _ = strconv.ParseFloat(v, 64)
	}

	// Directory resolution happens once per request; the row is stable for
	// the life of the user.
	dir, err := h.repo.EnsureDirectory(c.Request.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("directory resolve failed", zap.Error(err), zap.String("user_id", identity.UserID.String()))
		response.Internal(c, "failed to resolve audio directory")
		return
	}
	userDir, err := h.engine.UserDir(dir.DirKey)
	if err != nil {
		response.Internal(c, "failed to prepare audio directory")
		return
	}

	now := time.Now()
	ext := strings.ToLower(filepath.Ext(file.Filename))
	incoming := filepath.Join(userDir, ".incoming-"+uuid.New().String()+ext)
	if err := c.SaveUploadedFile(file, incoming); err != nil {
		h.logger.Error("segment buffer failed", zap.Error(err))
		response.Internal(c, "failed to buffer segment")
		return
	}

	outcome := h.engine.IngestSegment(c.Request.Context(), SegmentInput{
		UserID:       identity.UserID,
		AttendanceID: &open.ID,
		DirKey:       dir.DirKey,
		SegmentPath:  incoming,
		OrigExt:      ext,
		DurationHint: hint,
		Now:          now,
	})

	switch outcome.Status {
	case StatusMerged:
		if err := h.enforcer.EnforceQuota(c.Request.Context()); err != nil {
			h.logger.Warn("quota enforcement failed", zap.Error(err))
		}
		response.OK(c, gin.H{"message": "segment merged", "recording": outcome.Session})
	case StatusFallbackStored:
		response.OK(c, gin.H{"message": "segment stored without transcoding", "recording": outcome.Session})
	default:
		if errors.Is(outcome.Err, ErrRecordingStopped) {
			response.BadRequest(c, "recording stopped for today")
			return
		}
		h.logger.Error("segment ingest failed", zap.Error(outcome.Err), zap.String("user_id", identity.UserID.String()))
		response.Internal(c, "failed to process segment")
	}
}

// Serve handles GET /audio/files/:dir/:file with byte-range support:
// 206 + Content-Range for a satisfied range, 200 for the full file, 416 for
// unsatisfiable ranges. Content type derives from the file extension.
func (h *Handler) Serve(c *gin.Context) {
	dirKey := c.Param("dir")
	fileName := c.Param("file")
	if !safePathComponent(dirKey) || !safePathComponent(fileName) {
		response.BadRequest(c, "invalid path")
		return
	}

	path := filepath.Join(h.engine.StorageRoot(), dirKey, fileName)
	f, err := os.Open(path)
	if err != nil {
		response.NotFound(c, "recording not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		response.NotFound(c, "recording not found")
		return
	}

	c.Header("Content-Type", storage.ContentTypeForFilename(fileName))
	c.Header("Accept-Ranges", "bytes")
	http.ServeContent(c.Writer, c.Request, fileName, info.ModTime(), f)
}

// Stop handles POST /audio/sessions/:id/stop (admin): freezes the session,
// emits the stop fact, and queues the master for archival.
func (h *Handler) Stop(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	sess, err := h.tracker.StopByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("admin stop failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to stop recording")
		return
	}

	if h.notifier != nil {
		h.notifier.NotifyStop(sess.UserID, sess.ID)
	}
	h.enqueueArchive(c.Request.Context(), sess)

	response.OK(c, gin.H{"message": "recording stopped", "recording": sess})
}

// Cleanup handles POST /audio/cleanup (admin): immediate retention-age pass,
// independent of the quota check.
func (h *Handler) Cleanup(c *gin.Context) {
	removed, err := h.enforcer.PurgeExpired(c.Request.Context())
	if err != nil {
		h.logger.Error("cleanup failed", zap.Error(err))
		response.Internal(c, "cleanup failed")
		return
	}
	response.OK(c, gin.H{"message": "cleanup complete", "removed": removed})
}

// List handles GET /audio/recordings (admin): age pass first so the listing
// never shows records past retention, then all sessions.
func (h *Handler) List(c *gin.Context) {
	if _, err := h.enforcer.PurgeExpired(c.Request.Context()); err != nil {
		h.logger.Warn("retention pass before listing failed", zap.Error(err))
	}
	list, err := h.repo.ListAll(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, gin.H{"recordings": list})
}

// Active handles GET /audio/active (admin): currently recording sessions.
func (h *Handler) Active(c *gin.Context) {
	list, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list active recordings")
		return
	}
	response.OK(c, gin.H{"recordings": list})
}

// Delete handles DELETE /audio/recordings/:id (admin): removes the row, its
// files, and the user directory when it was the last session.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	sess, err := h.repo.GetSessionByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		response.Internal(c, "failed to load recording")
		return
	}
	dirKey, err := h.repo.GetDirKey(c.Request.Context(), sess.UserID)
	if err != nil {
		response.Internal(c, "failed to resolve directory")
		return
	}
	if err := h.enforcer.DeleteSession(c.Request.Context(), SessionWithDir{Session: *sess, DirKey: dirKey}); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	response.OK(c, gin.H{"message": "recording deleted"})
}

func (h *Handler) enqueueArchive(ctx context.Context, sess *models.RecordingSession) {
	if h.jobs == nil || sess.FileName == "" {
		return
	}
	dirKey, err := h.repo.GetDirKey(ctx, sess.UserID)
	if err != nil || dirKey == "" {
		return
	}
	err = h.jobs.EnqueueArchiveUpload(ctx, queue.ArchiveUploadPayload{
		RecordingID: sess.ID,
		UserID:      sess.UserID,
		DirKey:      dirKey,
		FileName:    sess.FileName,
	})
	if err != nil {
		h.logger.Warn("archive enqueue failed", zap.Error(err), zap.String("session_id", sess.ID.String()))
	}
}

// safePathComponent rejects traversal in user-supplied path parts.
func safePathComponent(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}
