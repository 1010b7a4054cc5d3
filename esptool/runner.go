package esptool

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process is
// killed on context expiry.
const waitDelay = time.Second

// Runner executes an external program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec. Failures are returned as *ToolError.
type ExecRunner struct{}

// Run executes name with args, bounded by ctx.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	te := &ToolError{
		Tool:     name,
		Args:     args,
		ExitCode: -1,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		te.Err = ctxErr
		return stdout.Bytes(), te
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	return stdout.Bytes(), te
}
