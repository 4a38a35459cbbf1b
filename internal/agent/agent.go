package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Capture failure modes. Device problems are surfaced distinctly; everything
// else is a generic capture failure.
var (
	ErrDeviceNotFound   = errors.New("capture device not found")
	ErrPermissionDenied = errors.New("capture device permission denied")
	ErrCaptureFailed    = errors.New("audio capture failed")
)

const (
	uploadTimeout   = 30 * time.Second
	stopGracePeriod = 10 * time.Second
)

// Config holds capture agent settings.
type Config struct {
	ServerURL      string
	Token          string
	DeviceID       string
	FFmpegPath     string
	InputDevice    string
	SegmentSeconds int
	WorkDir        string // local buffer for finalized segments
	BitrateKbps    int
	SampleRate     int
}

// Agent captures microphone audio in rotating time-boxed segments and uploads
// each finalized segment asynchronously. A failed upload is logged and never
// blocks continued capture.
type Agent struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	uploads sync.WaitGroup
}

// New creates a capture agent.
func New(cfg Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = 60
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = 64
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	return &Agent{
		cfg:    cfg,
		client: &http.Client{Timeout: uploadTimeout},
		logger: logger,
	}
}

// Run captures rotating segments until ctx is cancelled. Each rotation
// finalizes the current file with container headers intact and restarts
// capture immediately, so every uploaded blob is independently decodable.
// Run returns only after the capture process is reaped and pending uploads
// have drained.
func (a *Agent) Run(ctx context.Context) error {
	if err := os.MkdirAll(a.cfg.WorkDir, 0750); err != nil {
		return fmt.Errorf("%w: workdir: %v", ErrCaptureFailed, err)
	}
	defer a.uploads.Wait()

	for seq := 0; ; seq++ {
		if ctx.Err() != nil {
			return nil
		}
		path := filepath.Join(a.cfg.WorkDir, fmt.Sprintf("segment-%d-%03d.mp3", time.Now().Unix(), seq))
		started := time.Now()
		err := a.captureSegment(ctx, path)
		elapsed := time.Since(started)
		if err != nil {
			_ = os.Remove(path)
			// Device-level failures will not fix themselves mid-session.
			if errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrPermissionDenied) {
				return err
			}
			a.logger.Warn("segment capture failed", zap.Error(err))
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		a.uploads.Add(1)
		go func(p string, dur float64) {
			defer a.uploads.Done()
			if err := a.upload(p, dur); err != nil {
				a.logger.Warn("segment upload failed", zap.String("file", filepath.Base(p)), zap.Error(err))
			}
			_ = os.Remove(p)
		}(path, elapsed.Seconds())
	}
}

// captureSegment runs one time-boxed ffmpeg capture. On ctx cancellation the
// process gets an interrupt so the container is finalized, then a kill after
// the grace period. The device is released on every exit path.
func (a *Agent) captureSegment(ctx context.Context, outPath string) error {
	args := append(inputArgs(a.cfg.InputDevice),
		"-t", fmt.Sprintf("%d", a.cfg.SegmentSeconds),
		"-acodec", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", a.cfg.BitrateKbps),
		"-ar", fmt.Sprintf("%d", a.cfg.SampleRate),
		"-ac", "1",
		"-y",
		outPath,
	)
	cmd := exec.Command(a.cfg.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", ErrCaptureFailed, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case waitErr = <-done:
		case <-time.After(stopGracePeriod):
			_ = cmd.Process.Kill()
			waitErr = <-done
		}
	}

	// An interrupted run still produced a valid segment if the file landed.
	if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
		return nil
	}
	if waitErr != nil {
		return classifyCaptureError(stderr.String(), waitErr)
	}
	return fmt.Errorf("%w: empty segment", ErrCaptureFailed)
}

// inputArgs returns the ffmpeg capture input for the current platform.
func inputArgs(device string) []string {
	switch runtime.GOOS {
	case "darwin":
		if device == "" || device == "default" {
			device = ":0"
		}
		return []string{"-f", "avfoundation", "-i", device}
	case "windows":
		return []string{"-f", "dshow", "-i", "audio=" + device}
	default:
		if device == "" {
			device = "default"
		}
		return []string{"-f", "alsa", "-i", device}
	}
}

func classifyCaptureError(stderr string, cause error) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "no such"), strings.Contains(s, "cannot find"),
		strings.Contains(s, "device not found"), strings.Contains(s, "no such file or directory"):
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, cause)
	case strings.Contains(s, "permission denied"), strings.Contains(s, "operation not permitted"),
		strings.Contains(s, "access denied"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, cause)
	default:
		return fmt.Errorf("%w: %v: %s", ErrCaptureFailed, cause, lastLine(stderr))
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// upload posts one finalized segment as multipart form data with the
// client-measured duration hint.
func (a *Agent) upload(path string, durationSec float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.WriteField("duration", fmt.Sprintf("%.1f", durationSec)); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(a.cfg.ServerURL, "/")+"/audio/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	if a.cfg.DeviceID != "" {
		req.Header.Set("X-Device-Id", a.cfg.DeviceID)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
