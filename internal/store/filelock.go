package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// saveLock is a cross-process advisory lock held while artifacts are
// written, so two processes saving to the same paths never interleave
// their temp+rename sequences. Works on all platforms via gofrs/flock.
type saveLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// newSaveLock returns a lock for the artifact at path, backed by <path>.lock.
func newSaveLock(path string) *saveLock {
	lockPath := path + ".lock"
	return &saveLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// Lock blocks until the lock is acquired, creating its directory if needed.
func (l *saveLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire save lock: %w", err)
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. It is safe to call on an unlocked lock.
func (l *saveLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release save lock: %w", err)
	}
	return nil
}
