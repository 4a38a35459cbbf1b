package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// lockRegistry serializes merge critical sections per (user, day). Requests
// for different users, or different days of the same user, proceed in
// parallel; two appends for the same user-day never interleave.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*sync.Mutex)}
}

func mergeKey(userID uuid.UUID, day string) string {
	return fmt.Sprintf("%s/%s", userID, day)
}

// acquire locks the (user, day) scope and returns the release function.
// Callers must release on every exit path.
func (r *lockRegistry) acquire(userID uuid.UUID, day string) (release func()) {
	r.mu.Lock()
	l, ok := r.locks[mergeKey(userID, day)]
	if !ok {
		l = &sync.Mutex{}
		r.locks[mergeKey(userID, day)] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// dayOf formats t as the logical recording day.
func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}
