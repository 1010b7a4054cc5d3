package composer

import "time"

// Compose phases, in order.
const (
	PhaseParsing    = "parsing"
	PhaseResolving  = "resolving"
	PhasePatching   = "patching"
	PhaseFilesystem = "filesystem"
	PhaseMerging    = "merging"
	PhaseCommand    = "command"
	PhaseComplete   = "complete"
)

// phaseOrder numbers the phases for Progress.Step.
var phaseOrder = []string{
	PhaseParsing,
	PhaseResolving,
	PhasePatching,
	PhaseFilesystem,
	PhaseMerging,
	PhaseCommand,
	PhaseComplete,
}

// Progress contains information about the composition progress.
// Passed to ProgressCallback when each phase starts.
type Progress struct {
	// Phase describes the current step:
	//   "parsing"    - Reading the partition table
	//   "resolving"  - Deciding the effective flash size
	//   "patching"   - Resizing the filesystem partition
	//   "filesystem" - Staging files and building the filesystem image
	//   "merging"    - Laying out the merged image
	//   "command"    - Synthesizing the upload command
	//   "complete"   - Composition finished
	Phase string

	// Step is the 1-based index of Phase
	Step int

	// TotalSteps is the number of phases
	TotalSteps int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since composition started
	ElapsedTime time.Duration
}

// ProgressCallback is called when each compose phase starts.
// Implementations should return quickly.
//
// Example:
//
//	c := composer.New(cfg,
//	    composer.WithProgressCallback(func(p composer.Progress) {
//	        fmt.Printf("[%d/%d] %s\n", p.Step, p.TotalSteps, p.Phase)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the composer.
// A *slog.Logger satisfies it.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Warn(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	c := composer.New(cfg, composer.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning with optional key-value pairs
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
