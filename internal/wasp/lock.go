package wasp

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// FileLock is an advisory, single-writer exclusive lock held over a
// database's lifetime, acquired with flock(2). Trimmed to the non-blocking
// and polling-timeout acquire modes this engine actually needs — a
// single embedded process never needs the shared/read-lock variants.
type FileLock struct {
	file *os.File
	path string
}

// AcquireFileLock opens (creating if needed) path and takes an exclusive,
// non-blocking flock. Returns ErrLockHeld if another process already holds it.
func AcquireFileLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &FileLock{file: f, path: path}, nil
}

// AcquireFileLockTimeout polls for the lock, retrying every 50ms until
// timeout elapses.
func AcquireFileLockTimeout(path string, timeout time.Duration) (*FileLock, error) {
	deadline := time.Now().Add(timeout)
	for {
		lock, err := AcquireFileLock(path)
		if err == nil {
			return lock, nil
		}
		if err != ErrLockHeld || time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Release unlocks and closes the lock file.
func (l *FileLock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return err
	}
	return l.file.Close()
}
