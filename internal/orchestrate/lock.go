package orchestrate

import (
	"fmt"
	"os"
	"syscall"
)

// RunLock is a process-wide advisory lock preventing two orchestrator
// processes from mutating the same store concurrently. No file-locking
// library exists anywhere in the example pack, so this wraps the stdlib
// syscall.Flock directly — the same mechanism spec.md §6 describes.
type RunLock struct {
	file *os.File
}

// ErrLockHeld is returned by AcquireRunLock when another process already
// holds the lock. The caller logs the holder and exits zero (§4.8): a
// failed acquisition is not a pipeline failure, it's a double-run guard.
var ErrLockHeld = fmt.Errorf("run lock is held by another process")

// AcquireRunLock opens (creating if needed) the lock file at path and
// attempts a non-blocking exclusive flock. Returns ErrLockHeld if another
// process holds it.
func AcquireRunLock(path string) (*RunLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, ErrLockHeld
		}
		return nil, fmt.Errorf("flock: %w", err)
	}

	return &RunLock{file: f}, nil
}

// Release unlocks and closes the lock file. Safe to call once; a second
// call is a no-op error from the closed fd, which callers should ignore
// via defer.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unlock: %w", err)
	}
	return l.file.Close()
}
