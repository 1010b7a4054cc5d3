// Package flashsize decides how much flash the composed image may use.
//
// The statically configured size is always valid. When the build targets a
// connected device, a Probe can report a larger chip; the resolver then lets
// downstream steps grow into the extra space. A smaller or missing probe
// result never shrinks the layout.
package flashsize

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-espimage/esptool"
)

// DefaultProbeTimeout bounds a single flash_id run.
const DefaultProbeTimeout = 10 * time.Second

// Probe reports the flash size of the attached device in bytes.
type Probe interface {
	Detect(ctx context.Context) (uint32, error)
}

// ProbeError indicates that the device could not be probed.
type ProbeError struct {
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("flash size probe failed: %v", e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Logger is the subset of structured logging the resolver needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// EsptoolProbe runs esptool flash_id and parses the reported size.
type EsptoolProbe struct {
	// Invocation locates esptool
	Invocation esptool.Invocation

	// Conn selects the serial port and speed
	Conn esptool.Connection

	// Timeout bounds the run; zero means DefaultProbeTimeout
	Timeout time.Duration

	// Runner executes the command; nil means esptool.ExecRunner
	Runner esptool.Runner
}

// Detect implements Probe.
func (p *EsptoolProbe) Detect(ctx context.Context) (uint32, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runner := p.Runner
	if runner == nil {
		runner = esptool.ExecRunner{}
	}

	name, args := p.Invocation.Command(esptool.BuildFlashIDCmd(p.Conn))
	out, err := runner.Run(ctx, name, args...)
	if err != nil {
		return 0, &ProbeError{Err: err}
	}

	size, err := esptool.ParseFlashIDResponse(out)
	if err != nil {
		return 0, &ProbeError{Err: err}
	}
	return size, nil
}

// Descriptor is the outcome of capacity resolution.
type Descriptor struct {
	// Configured is the statically declared flash size
	Configured uint32

	// Detected is the probed size, zero when no probe ran or it failed
	Detected uint32

	// Overridden is true only when Detected > Configured
	Overridden bool
}

// Effective returns the size downstream steps must fit into.
func (d Descriptor) Effective() uint32 {
	if d.Overridden {
		return d.Detected
	}
	return d.Configured
}

// Resolver applies the override rule to a probe result.
type Resolver struct {
	probe  Probe
	logger Logger
}

// NewResolver returns a resolver using probe. A nil probe disables probing.
func NewResolver(probe Probe, logger Logger) *Resolver {
	return &Resolver{probe: probe, logger: logger}
}

// Resolve returns the flash descriptor for a build. The probe only runs when
// needsHardware is set. Probe failures fall back to configured with a warning.
func (r *Resolver) Resolve(ctx context.Context, configured uint32, needsHardware bool) Descriptor {
	d := Descriptor{Configured: configured}
	if !needsHardware || r.probe == nil {
		return d
	}

	detected, err := r.probe.Detect(ctx)
	if err != nil {
		r.warn("flash size probe failed, using configured size",
			"configured", esptool.FormatSize(configured),
			"error", err.Error(),
		)
		return d
	}

	d.Detected = detected
	if detected > configured {
		d.Overridden = true
		r.info("detected flash larger than configured",
			"configured", esptool.FormatSize(configured),
			"detected", esptool.FormatSize(detected),
		)
	}
	return d
}

func (r *Resolver) info(msg string, kv ...interface{}) {
	if r.logger != nil {
		r.logger.Info(msg, kv...)
	}
}

func (r *Resolver) warn(msg string, kv ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, kv...)
	}
}
