// Package lockfile provides the non-blocking run lock that keeps two
// export cycles from overlapping on the same volume.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrHeld indicates another process currently holds the lock.
var ErrHeld = errors.New("run lock already held by another process")

// Lock is an acquired exclusive lock backed by a flock'd file.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive non-blocking flock on path, creating the
// file if needed, and writes the holder's PID into it. It returns
// ErrHeld immediately when the lock is busy; it never waits.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	// Best effort: the PID is informational only, the flock is the lock.
	_ = f.Truncate(0)
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Sync()

	return &Lock{f: f}, nil
}

// Release drops the lock. Safe to call on a nil lock and idempotent
// with respect to errors; releasing never fails the caller.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
	l.f = nil
}
