package esptool

import (
	"errors"
	"fmt"
	"strings"
)

// ToolError represents a failed external tool invocation.
type ToolError struct {
	// Tool is the program that was run
	Tool string

	// Args are the arguments it was run with
	Args []string

	// ExitCode is the exit status, -1 when the process did not exit normally
	ExitCode int

	// Stderr is the trimmed standard error output
	Stderr string

	// Err is the underlying error (exec failure, context deadline, ...)
	Err error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Tool)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsToolError returns true if the error is or wraps a ToolError.
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}
