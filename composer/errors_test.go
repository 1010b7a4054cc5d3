package composer

import (
	"errors"
	"strings"
	"testing"
)

func TestPhaseError(t *testing.T) {
	inner := errors.New("boom")
	err := &PhaseError{Phase: PhaseMerging, Err: inner}

	if err.Error() != "merging: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("PhaseError should unwrap to the inner error")
	}
}

func TestLockedError(t *testing.T) {
	err := &LockedError{Path: "build/.espimage.lock"}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "locked") {
		t.Errorf("error message should contain 'locked', got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "build/.espimage.lock") {
		t.Errorf("error message should contain the lock path, got: %s", errMsg)
	}
}
