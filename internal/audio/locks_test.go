package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLockRegistrySerializesSameKey(t *testing.T) {
	reg := newLockRegistry()
	userID := uuid.New()

	inCritical := 0
	maxInCritical := 0
	var observe sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := reg.acquire(userID, "2026-08-31")
			defer release()
			observe.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			observe.Unlock()
			time.Sleep(time.Millisecond)
			observe.Lock()
			inCritical--
			observe.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInCritical)
}

func TestLockRegistryIndependentKeysDoNotBlock(t *testing.T) {
	reg := newLockRegistry()
	userA, userB := uuid.New(), uuid.New()

	releaseA := reg.acquire(userA, "2026-08-31")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		// Different user, and same user on a different day: neither waits on A.
		release := reg.acquire(userB, "2026-08-31")
		release()
		release = reg.acquire(userA, "2026-09-01")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("independent lock keys blocked each other")
	}
}

func TestDayOf(t *testing.T) {
	assert.Equal(t, "2026-08-31", dayOf(time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)))
	assert.Equal(t, "2026-01-05", dayOf(time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)))
}
