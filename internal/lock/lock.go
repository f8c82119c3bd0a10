// Package lock implements the single-writer directory lock that gives an
// Engine exclusive ownership of a data directory for its whole lifetime.
package lock

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/kelsi-vault/skv/internal/storeerr"
)

// FileName is the lock file's name inside the data directory.
const FileName = "kvstore.lock"

// DirLock holds an advisory exclusive flock for as long as it is not
// released. The handle must be kept for the engine's entire lifetime —
// releasing it early (e.g. by letting it go out of scope in a constructor)
// defeats the single-writer guarantee.
type DirLock struct {
	f *os.File
}

// Acquire takes an exclusive, non-blocking lock on <dir>/kvstore.lock.
// It returns a LockedError-kind error if another process already holds it.
func Acquire(dir string) (*DirLock, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, storeerr.IOErr("open lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, storeerr.LockedErr("another process holds "+path, err)
	}
	return &DirLock{f: f}, nil
}

// Release unlocks and closes the handle. Safe to call on a nil receiver and
// idempotent.
func (l *DirLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return storeerr.IOErr("close lock file", err)
	}
	return nil
}
