//go:build !(darwin || linux || freebsd || netbsd || openbsd)

package composer

type buildLock struct{}

// acquireLock is a no-op where flock is unavailable.
func acquireLock(path string) (*buildLock, error) {
	return &buildLock{}, nil
}

func (l *buildLock) release() error {
	return nil
}
