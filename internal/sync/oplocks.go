package sync

import (
	gosync "sync"
	"time"
)

// opLockRegistry tracks in-flight operation replays keyed by operation id.
// A retried drain call that finds an operation already locked joins by
// skipping it instead of duplicating the replay. Locks older than the
// per-operation timeout are considered stale (their holder hung or died
// mid-replay) and are reclaimed.
type opLockRegistry struct {
	mu    gosync.Mutex
	locks map[string]time.Time
	ttl   time.Duration
}

func newOpLockRegistry(ttl time.Duration) *opLockRegistry {
	return &opLockRegistry{
		locks: make(map[string]time.Time),
		ttl:   ttl,
	}
}

// acquire claims the lock for an operation id. It fails only when a fresh
// lock is already held; stale locks are swept and reclaimed.
func (r *opLockRegistry) acquire(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if held, ok := r.locks[id]; ok && now.Sub(held) < r.ttl {
		return false
	}
	r.locks[id] = now
	return true
}

// release drops the lock for an operation id.
func (r *opLockRegistry) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locks, id)
}

// sweep removes stale locks and returns how many were dropped.
func (r *opLockRegistry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for id, held := range r.locks {
		if now.Sub(held) >= r.ttl {
			delete(r.locks, id)
			dropped++
		}
	}
	return dropped
}

// size returns the number of held locks.
func (r *opLockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
