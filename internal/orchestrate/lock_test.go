package orchestrate

import (
	"path/filepath"
	"testing"
)

func TestAcquireRunLock_SecondAcquireFailsWithErrLockHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("first AcquireRunLock() failed: %v", err)
	}
	defer first.Release()

	_, err = AcquireRunLock(path)
	if err != ErrLockHeld {
		t.Errorf("second AcquireRunLock() error = %v, want ErrLockHeld", err)
	}
}

func TestAcquireRunLock_ReleaseThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("first AcquireRunLock() failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	second, err := AcquireRunLock(path)
	if err != nil {
		t.Fatalf("second AcquireRunLock() after release failed: %v", err)
	}
	defer second.Release()
}

func TestRunLock_ReleaseNilIsNoop(t *testing.T) {
	var l *RunLock
	if err := l.Release(); err != nil {
		t.Errorf("Release() on nil *RunLock should not error: %v", err)
	}
}
