package audio

import "errors"

// Pipeline error taxonomy. Transcode failures are recovered locally via the
// raw-fallback path and never reach the caller; merge and storage failures do.
var (
	ErrNoActiveAttendance = errors.New("no active attendance")
	ErrRecordingStopped   = errors.New("recording stopped for today")
	ErrTranscodeFailed    = errors.New("transcode failed")
	ErrMergeFailed        = errors.New("merge failed")
	ErrStorageIO          = errors.New("storage io failed")
	ErrNotFound           = errors.New("recording not found")
)
