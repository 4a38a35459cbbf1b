package audio

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/attendtrack/backend/internal/models"
)

// MergeStatus tags the outcome of one segment ingestion.
type MergeStatus string

const (
	// StatusMerged means the segment was transcoded and appended to the master.
	StatusMerged MergeStatus = "merged"
	// StatusFallbackStored means transcoding failed and the raw segment was
	// preserved as an addendum file instead; still a success for the caller.
	StatusFallbackStored MergeStatus = "fallback_stored"
	// StatusFailed means the merge failed; the prior master is untouched.
	StatusFailed MergeStatus = "failed"
)

// MergeOutcome is the explicit per-branch contract of segment ingestion.
type MergeOutcome struct {
	Status       MergeStatus
	Session      *models.RecordingSession
	FallbackFile string
	Err          error
}

// SegmentInput describes one uploaded segment handed to the engine.
type SegmentInput struct {
	UserID       uuid.UUID
	AttendanceID *uuid.UUID
	DirKey       string
	SegmentPath  string  // buffered upload on local disk; consumed by the engine
	OrigExt      string  // client filename extension, used for raw fallback naming
	DurationHint float64 // client-reported seconds; 0 when absent
	Now          time.Time
}

// MergeEngine grows exactly one master file per user per day by stream-copy
// appending transcoded segments. All work for one (user, day) runs inside a
// keyed lock: two concurrent appends must never read the same pre-append
// master.
type MergeEngine struct {
	store       Store
	tc          Transcoder
	locks       *lockRegistry
	storageRoot string
	bitrateKbps int
	logger      *zap.Logger
}

// NewMergeEngine creates a merge engine rooted at storageRoot.
func NewMergeEngine(store Store, tc Transcoder, storageRoot string, bitrateKbps int, logger *zap.Logger) *MergeEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeEngine{
		store:       store,
		tc:          tc,
		locks:       newLockRegistry(),
		storageRoot: storageRoot,
		bitrateKbps: bitrateKbps,
		logger:      logger,
	}
}

// UserDir returns the absolute directory for a directory key, creating it
// lazily.
func (e *MergeEngine) UserDir(dirKey string) (string, error) {
	dir := filepath.Join(e.storageRoot, dirKey)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("%w: mkdir %s: %v", ErrStorageIO, dirKey, err)
	}
	return dir, nil
}

// StorageRoot returns the configured storage root.
func (e *MergeEngine) StorageRoot() string { return e.storageRoot }

// FileURL returns the retrieval path for a stored file.
func FileURL(dirKey, fileName string) string {
	return path.Join("/audio/files", dirKey, fileName)
}

// IngestSegment transcodes the uploaded segment and appends it to the day's
// master under the per-(user, day) lock. Merge ordering is server arrival
// order: whoever acquires the lock first merges first.
func (e *MergeEngine) IngestSegment(ctx context.Context, in SegmentInput) MergeOutcome {
	day := dayOf(in.Now)
	release := e.locks.acquire(in.UserID, day)
	defer release()
	defer os.Remove(in.SegmentPath)

	sess, err := e.store.GetSessionByUserDate(ctx, in.UserID, day)
	if err != nil {
		return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("load session: %w", err)}
	}
	if sess == nil {
		// First segment of the day creates the row.
		sess, err = e.store.ActivateSession(ctx, in.UserID, in.AttendanceID, day)
		if err != nil {
			return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("create session: %w", err)}
		}
	} else if !sess.IsActive {
		return MergeOutcome{Status: StatusFailed, Err: ErrRecordingStopped}
	}

	dir, err := e.UserDir(in.DirKey)
	if err != nil {
		return MergeOutcome{Status: StatusFailed, Err: err}
	}

	normalized := filepath.Join(dir, fmt.Sprintf(".seg-%d.mp3", in.Now.UnixNano()))
	if err := e.tc.Normalize(ctx, in.SegmentPath, normalized); err != nil {
		return e.storeFallback(ctx, in, sess, dir, day, err)
	}
	defer os.Remove(normalized)

	added := e.segmentSeconds(ctx, normalized, in.DurationHint)

	masterName := day + ".mp3"
	masterPath := filepath.Join(dir, masterName)

	if sess.FileName == "" {
		// No master yet: promote the transcoded segment.
		if err := os.Rename(normalized, masterPath); err != nil {
			return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("%w: promote: %v", ErrStorageIO, err)}
		}
	} else {
		merged := filepath.Join(dir, fmt.Sprintf(".merge-%d.mp3", in.Now.UnixNano()))
		if err := e.tc.Concat(ctx, []string{masterPath, normalized}, merged); err != nil {
			// Prior master is untouched on any concat failure.
			_ = os.Remove(merged)
			return MergeOutcome{Status: StatusFailed, Err: err}
		}
		if err := os.Rename(merged, masterPath); err != nil {
			_ = os.Remove(merged)
			return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("%w: replace master: %v", ErrStorageIO, err)}
		}
	}

	info, err := os.Stat(masterPath)
	if err != nil {
		return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("%w: stat master: %v", ErrStorageIO, err)}
	}

	updated, err := e.store.RecordMerge(ctx, sess.ID, FileURL(in.DirKey, masterName), masterName, info.Size(), added)
	if err != nil {
		return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("record merge: %w", err)}
	}

	e.logger.Info("segment merged",
		zap.String("user_id", in.UserID.String()),
		zap.String("date", day),
		zap.Float64("added_seconds", added),
		zap.Int64("master_bytes", info.Size()))
	return MergeOutcome{Status: StatusMerged, Session: updated}
}

// storeFallback preserves the raw segment when transcoding fails. Monitoring
// continuity wins over codec uniformity: the audio is kept retrievable as an
// addendum file and the session still gets duration credit.
func (e *MergeEngine) storeFallback(ctx context.Context, in SegmentInput, sess *models.RecordingSession, dir, day string, cause error) MergeOutcome {
	ext := in.OrigExt
	if ext == "" {
		ext = ".bin"
	}
	name := fmt.Sprintf("%s_%d_raw%s", day, in.Now.UnixMilli(), ext)
	dst := filepath.Join(dir, name)
	if err := copyFile(in.SegmentPath, dst); err != nil {
		return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("%w: store fallback: %v", ErrStorageIO, err)}
	}

	added := in.DurationHint
	if added <= 0 {
		if info, err := os.Stat(dst); err == nil {
			added = EstimateDurationSeconds(info.Size(), e.bitrateKbps)
		}
	}
	updated, err := e.store.AddDuration(ctx, sess.ID, added)
	if err != nil {
		return MergeOutcome{Status: StatusFailed, Err: fmt.Errorf("credit fallback duration: %w", err)}
	}

	e.logger.Warn("transcode failed, raw segment stored",
		zap.String("user_id", in.UserID.String()),
		zap.String("file", name),
		zap.Error(cause))
	return MergeOutcome{Status: StatusFallbackStored, Session: updated, FallbackFile: name}
}

// segmentSeconds measures the normalized segment: probe first, client hint
// second, byte-size estimate last.
func (e *MergeEngine) segmentSeconds(ctx context.Context, path string, hint float64) float64 {
	if dur, err := e.tc.Probe(ctx, path); err == nil && dur > 0 {
		return dur
	}
	if hint > 0 {
		return hint
	}
	if info, err := os.Stat(path); err == nil {
		return EstimateDurationSeconds(info.Size(), e.bitrateKbps)
	}
	return 0
}
