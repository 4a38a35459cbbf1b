package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transcoder normalizes arbitrary client containers into the canonical codec,
// stream-copy concatenates encoded files, and measures durations.
type Transcoder interface {
	// Normalize converts src into the canonical codec at dst. On failure dst
	// must not exist; the caller falls back to storing src raw.
	Normalize(ctx context.Context, src, dst string) error
	// Concat stream-copies inputs into dst without re-encoding.
	Concat(ctx context.Context, inputs []string, dst string) error
	// Probe returns the duration of the file in seconds.
	Probe(ctx context.Context, path string) (float64, error)
}

// FFmpegTranscoder shells out to ffmpeg/ffprobe with a fixed target profile.
// Binary paths are resolved once at construction, not per call.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
	bitrateKbps int
	sampleRate  int
	timeout     time.Duration
	logger      *zap.Logger
}

// NewFFmpegTranscoder creates a transcoder with the given encoder profile.
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string, bitrateKbps, sampleRate int, timeout time.Duration, logger *zap.Logger) *FFmpegTranscoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolved, err := exec.LookPath(ffmpegPath); err == nil {
		ffmpegPath = resolved
	}
	if resolved, err := exec.LookPath(ffprobePath); err == nil {
		ffprobePath = resolved
	}
	return &FFmpegTranscoder{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		bitrateKbps: bitrateKbps,
		sampleRate:  sampleRate,
		timeout:     timeout,
		logger:      logger,
	}
}

// NeedsNormalization sniffs the file's container signature. Only containers
// whose signature indicates a non-canonical format are transcoded; MP3 input
// passes straight through.
func NeedsNormalization(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, err
	}
	head = head[:n]
	return sniffContainer(head) != containerMP3, nil
}

type container int

const (
	containerUnknown container = iota
	containerMP3
	containerWebM
	containerOgg
	containerMP4
	containerWAV
)

func sniffContainer(head []byte) container {
	switch {
	case len(head) >= 4 && head[0] == 0x1A && head[1] == 0x45 && head[2] == 0xDF && head[3] == 0xA3:
		return containerWebM
	case len(head) >= 4 && bytes.Equal(head[:4], []byte("OggS")):
		return containerOgg
	case len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")):
		return containerMP4
	case len(head) >= 4 && bytes.Equal(head[:4], []byte("RIFF")):
		return containerWAV
	case len(head) >= 3 && bytes.Equal(head[:3], []byte("ID3")):
		return containerMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return containerMP3
	default:
		return containerUnknown
	}
}

// Normalize converts src to canonical MP3 at dst. MP3 input is copied as-is.
func (t *FFmpegTranscoder) Normalize(ctx context.Context, src, dst string) error {
	needs, err := NeedsNormalization(src)
	if err != nil {
		return fmt.Errorf("%w: sniff %s: %v", ErrTranscodeFailed, filepath.Base(src), err)
	}
	if !needs {
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-i", src,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", t.bitrateKbps),
		"-ar", strconv.Itoa(t.sampleRate),
		"-ac", "1",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(dst)
		t.logger.Warn("ffmpeg normalize failed",
			zap.String("src", filepath.Base(src)),
			zap.String("stderr", tailLines(stderr.String(), 5)),
			zap.Error(err))
		return fmt.Errorf("%w: %v: %s", ErrTranscodeFailed, err, tailLines(stderr.String(), 2))
	}
	return nil
}

// Concat stream-copies inputs into dst using the concat demuxer; no
// re-encoding of previously merged content.
func (t *FFmpegTranscoder) Concat(ctx context.Context, inputs []string, dst string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrMergeFailed)
	}
	listPath := dst + ".txt"
	var sb strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMergeFailed, err)
		}
		// concat demuxer file entries: single quotes escaped as '\''
		sb.WriteString("file '" + strings.ReplaceAll(abs, "'", `'\''`) + "'\n")
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0600); err != nil {
		return fmt.Errorf("%w: write list: %v", ErrMergeFailed, err)
	}
	defer os.Remove(listPath)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(dst)
		t.logger.Error("ffmpeg concat failed",
			zap.Strings("inputs", inputs),
			zap.String("stderr", tailLines(stderr.String(), 5)),
			zap.Error(err))
		return fmt.Errorf("%w: %v: %s", ErrMergeFailed, err, tailLines(stderr.String(), 2))
	}
	return nil
}

// Probe returns the container duration in seconds via ffprobe.
func (t *FFmpegTranscoder) Probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	return dur, nil
}

// EstimateDurationSeconds estimates audio length from encoded byte size at
// the given bitrate. Used only when both the probe and the client hint are
// unavailable; accuracy depends on encoder output matching the target bitrate.
func EstimateDurationSeconds(sizeBytes int64, bitrateKbps int) float64 {
	if sizeBytes <= 0 || bitrateKbps <= 0 {
		return 0
	}
	return float64(sizeBytes*8) / float64(bitrateKbps*1000)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
