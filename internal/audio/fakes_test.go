package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attendtrack/backend/internal/models"
)

// memStore is an in-memory Store for pipeline tests.
type memStore struct {
	mu       sync.Mutex
	dirs     map[uuid.UUID]*models.AudioDirectory
	sessions map[uuid.UUID]*models.RecordingSession
}

func newMemStore() *memStore {
	return &memStore{
		dirs:     make(map[uuid.UUID]*models.AudioDirectory),
		sessions: make(map[uuid.UUID]*models.RecordingSession),
	}
}

// seed inserts a session directly, bypassing activation.
func (m *memStore) seed(s models.RecordingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.sessions[s.ID] = &cp
}

func (m *memStore) get(id uuid.UUID) models.RecordingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.sessions[id]
}

func (m *memStore) dirKeyOf(userID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.dirs[userID]; ok {
		return d.DirKey
	}
	return ""
}

func (m *memStore) EnsureDirectory(_ context.Context, userID uuid.UUID) (*models.AudioDirectory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.dirs[userID]; ok {
		cp := *d
		return &cp, nil
	}
	d := &models.AudioDirectory{
		ID:        uuid.New(),
		UserID:    userID,
		DirKey:    "user-" + strings.Split(userID.String(), "-")[0],
		CreatedAt: time.Now(),
	}
	m.dirs[userID] = d
	cp := *d
	return &cp, nil
}

func (m *memStore) GetSessionByUserDate(_ context.Context, userID uuid.UUID, date string) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RecordingDate == date {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetSessionByID(_ context.Context, id uuid.UUID) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ActivateSession(_ context.Context, userID uuid.UUID, attendanceID *uuid.UUID, date string) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.RecordingDate == date {
			s.IsActive = true
			if s.AttendanceID == nil {
				s.AttendanceID = attendanceID
			}
			s.UpdatedAt = time.Now()
			cp := *s
			return &cp, nil
		}
	}
	s := &models.RecordingSession{
		ID:            uuid.New(),
		UserID:        userID,
		AttendanceID:  attendanceID,
		RecordingDate: date,
		IsActive:      true,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	m.sessions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (m *memStore) RecordMerge(_ context.Context, id uuid.UUID, fileURL, fileName string, fileSize int64, addedSeconds float64) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.FileURL = fileURL
	s.FileName = fileName
	s.FileSize = fileSize
	s.Duration += addedSeconds
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memStore) AddDuration(_ context.Context, id uuid.UUID, addedSeconds float64) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.Duration += addedSeconds
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memStore) StopSession(_ context.Context, id uuid.UUID, finalSeconds float64) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.IsActive = false
	if finalSeconds > s.Duration {
		s.Duration = finalSeconds
	}
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (m *memStore) SetArchiveURL(_ context.Context, id uuid.UUID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.ArchiveURL = url
	return nil
}

func (m *memStore) TotalSize(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, s := range m.sessions {
		total += s.FileSize
	}
	return total, nil
}

func (m *memStore) OldestSessionBefore(_ context.Context, date string) (*SessionWithDir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *models.RecordingSession
	for _, s := range m.sessions {
		if s.RecordingDate >= date {
			continue
		}
		if oldest == nil || s.CreatedAt.Before(oldest.CreatedAt) {
			oldest = s
		}
	}
	if oldest == nil {
		return nil, nil
	}
	out := SessionWithDir{Session: *oldest}
	if d, ok := m.dirs[oldest.UserID]; ok {
		out.DirKey = d.DirKey
	}
	return &out, nil
}

func (m *memStore) ListExpired(_ context.Context, cutoff time.Time) ([]SessionWithDir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []SessionWithDir
	for _, s := range m.sessions {
		if !s.CreatedAt.Before(cutoff) {
			continue
		}
		out := SessionWithDir{Session: *s}
		if d, ok := m.dirs[s.UserID]; ok {
			out.DirKey = d.DirKey
		}
		list = append(list, out)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Session.CreatedAt.Before(list[j].Session.CreatedAt)
	})
	return list, nil
}

func (m *memStore) DeleteSession(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *memStore) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

var _ Store = (*memStore)(nil)

// fakeTranscoder copies bytes instead of shelling out. Normalize copies the
// source, Concat concatenates inputs, Probe returns a fixed duration.
type fakeTranscoder struct {
	mu            sync.Mutex
	failNormalize bool
	failConcat    bool
	probeSeconds  float64
	probeErr      error
	normalized    int
	concatenated  int
}

func (f *fakeTranscoder) Normalize(_ context.Context, src, dst string) error {
	f.mu.Lock()
	fail := f.failNormalize
	f.normalized++
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: exit status 1", ErrTranscodeFailed)
	}
	return testCopy(src, dst)
}

func (f *fakeTranscoder) Concat(_ context.Context, inputs []string, dst string) error {
	f.mu.Lock()
	fail := f.failConcat
	f.concatenated++
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: exit status 1", ErrMergeFailed)
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeTranscoder) Probe(_ context.Context, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.probeErr != nil {
		return 0, f.probeErr
	}
	return f.probeSeconds, nil
}

var _ Transcoder = (*fakeTranscoder)(nil)

func testCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
