package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeHead(t *testing.T, head []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, head, 0600))
	return path
}

func TestNeedsNormalization(t *testing.T) {
	cases := []struct {
		name  string
		head  []byte
		needs bool
	}{
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0, 0, 0, 0}, true},
		{"ogg", []byte("OggS\x00\x02rest"), true},
		{"mp4", []byte{0, 0, 0, 0x20, 'f', 't', 'y', 'p', 'M', '4', 'A', ' '}, true},
		{"wav", []byte("RIFF\x24\x08\x00\x00WAVE"), true},
		{"mp3 id3", []byte("ID3\x03\x00\x00\x00\x00\x00\x00"), false},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, false},
		{"unknown", []byte("garbage bytes"), true},
		{"empty", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			needs, err := NeedsNormalization(writeHead(t, tc.head))
			require.NoError(t, err)
			assert.Equal(t, tc.needs, needs)
		})
	}
}

func TestNeedsNormalizationMissingFile(t *testing.T) {
	_, err := NeedsNormalization(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestEstimateDurationSeconds(t *testing.T) {
	// 64 kbps: 8000 bytes per second of audio.
	assert.InDelta(t, 1, EstimateDurationSeconds(8000, 64), 0.001)
	assert.InDelta(t, 60, EstimateDurationSeconds(480000, 64), 0.001)
	assert.Zero(t, EstimateDurationSeconds(0, 64))
	assert.Zero(t, EstimateDurationSeconds(-1, 64))
	assert.Zero(t, EstimateDurationSeconds(8000, 0))
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, "c | d", tailLines("a\nb\nc\nd", 2))
	assert.Equal(t, "a", tailLines("a", 5))
	assert.Equal(t, "", tailLines("", 2))
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0600))

	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}
