//go:build !windows
// +build !windows

package vectorindex

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// fileLock is a cross-process advisory lock over the snapshot pair.
// Multiple worker processes may save and load the index concurrently; the
// lock makes the two-artifact write appear atomic to cooperating readers.
type fileLock struct {
	file *os.File
}

const lockPollInterval = 50 * time.Millisecond

// acquireLock takes an exclusive flock on path, polling until timeout.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - lock file under index dir
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &fileLock{file: file}, nil
		}
		if err != syscall.EWOULDBLOCK {
			_ = file.Close()
			return nil, fmt.Errorf("flock failed: %w", err)
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, path, timeout)
		}
		time.Sleep(lockPollInterval)
	}
}

func (l *fileLock) Unlock() error {
	if l.file != nil {
		// Ignore unlock error
		_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		return l.file.Close()
	}
	return nil
}
