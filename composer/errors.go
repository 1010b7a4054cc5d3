package composer

import (
	"fmt"
)

// PhaseError wraps the failure of one compose phase.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// LockedError indicates that another composition holds the build directory.
type LockedError struct {
	Path string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("build directory is locked by another process: %s", e.Path)
}
