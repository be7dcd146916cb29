//go:build windows
// +build windows

package vectorindex

import (
	"errors"
	"time"
)

type fileLock struct{}

// The worker targets unix hosts; snapshot locking is not supported on windows.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	return nil, errors.New("vectorindex: advisory locking not supported on windows")
}

func (l *fileLock) Unlock() error { return nil }
