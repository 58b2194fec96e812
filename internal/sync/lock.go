package sync

import (
	"github.com/gofrs/flock"
)

// Mutex is a cooperative exclusive lock keyed by a fixed name, guarding
// one sync pass system-wide. Cross-process contenders that fail TryLock
// simply skip their pass; the in-flight holder covers the work.
type Mutex interface {
	TryLock() (bool, error)
	Unlock() error
}

// FileMutex implements Mutex with an advisory file lock, serializing sync
// passes across OS processes sharing the same data directory.
type FileMutex struct {
	fl *flock.Flock
}

// NewFileMutex creates a file-backed mutex at path.
func NewFileMutex(path string) *FileMutex {
	return &FileMutex{fl: flock.New(path)}
}

// TryLock attempts to acquire the lock without blocking.
func (m *FileMutex) TryLock() (bool, error) {
	return m.fl.TryLock()
}

// Unlock releases the lock.
func (m *FileMutex) Unlock() error {
	return m.fl.Unlock()
}

// nopMutex is used when no cross-process exclusion is configured, e.g. in
// tests or single-process deployments.
type nopMutex struct{}

func (nopMutex) TryLock() (bool, error) { return true, nil }
func (nopMutex) Unlock() error          { return nil }
