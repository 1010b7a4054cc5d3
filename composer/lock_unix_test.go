//go:build darwin || linux || freebsd || netbsd || openbsd

package composer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestComposeLockedBuildDir(t *testing.T) {
	f := newFixture(t, 0x1000)

	held, err := acquireLock(filepath.Join(f.cfg.BuildDir, LockFileName))
	if err != nil {
		t.Fatalf("acquireLock: %v", err)
	}

	_, err = New(f.cfg).Compose(context.Background())
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("error = %v, want *LockedError", err)
	}

	if err := held.release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := New(f.cfg).Compose(context.Background()); err != nil {
		t.Errorf("Compose() after release failed: %v", err)
	}
}

func TestComposeWithoutLock(t *testing.T) {
	f := newFixture(t, 0x1000)

	held, err := acquireLock(filepath.Join(f.cfg.BuildDir, LockFileName))
	if err != nil {
		t.Fatal(err)
	}
	defer held.release()

	if _, err := New(f.cfg, WithLock(false)).Compose(context.Background()); err != nil {
		t.Errorf("Compose() with locking disabled failed: %v", err)
	}
}
