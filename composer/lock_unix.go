//go:build darwin || linux || freebsd || netbsd || openbsd

package composer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// buildLock is an exclusive advisory lock on a file in the build directory.
type buildLock struct {
	file *os.File
}

// acquireLock locks path without blocking. A held lock returns *LockedError.
func acquireLock(path string) (*buildLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, &LockedError{Path: path}
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &buildLock{file: f}, nil
}

func (l *buildLock) release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
