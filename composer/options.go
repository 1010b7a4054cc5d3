package composer

import (
	"net/http"

	"github.com/moffa90/go-espimage/esptool"
	"github.com/moffa90/go-espimage/flashsize"
	"github.com/moffa90/go-espimage/fsimage"
)

// Config holds the composer configuration.
type Config struct {
	// ProgressCallback is called as each phase starts (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Probe reports the attached flash size. Nil means an esptool flash_id
	// probe built from the upload settings.
	Probe flashsize.Probe

	// FilesystemTool builds the filesystem image. Nil means mklittlefs.
	FilesystemTool fsimage.Tool

	// HTTPClient fetches remote manifest entries
	HTTPClient *http.Client

	// Runner executes external tools for the default probe and image tool
	Runner esptool.Runner

	// Lock takes an exclusive lock on the build directory while composing
	Lock bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		HTTPClient: http.DefaultClient,
		Runner:     esptool.ExecRunner{},
		Lock:       true,
	}
}

// Option is a functional option for configuring the Composer.
type Option func(*Config)

// WithProgressCallback sets a callback function to track composition progress.
//
// Example:
//
//	c := composer.New(cfg,
//	    composer.WithProgressCallback(func(p composer.Progress) {
//	        fmt.Printf("%.0f%% %s\n", p.Percentage, p.Phase)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the composer and the steps it runs.
//
// Example:
//
//	c := composer.New(cfg, composer.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithProbe replaces the flash size probe.
func WithProbe(probe flashsize.Probe) Option {
	return func(c *Config) {
		c.Probe = probe
	}
}

// WithFilesystemTool replaces the filesystem image tool.
func WithFilesystemTool(tool fsimage.Tool) Option {
	return func(c *Config) {
		c.FilesystemTool = tool
	}
}

// WithHTTPClient sets the client used for remote manifest entries.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		if client != nil {
			c.HTTPClient = client
		}
	}
}

// WithRunner sets how external tools are executed.
func WithRunner(runner esptool.Runner) Option {
	return func(c *Config) {
		if runner != nil {
			c.Runner = runner
		}
	}
}

// WithLock enables or disables the build directory lock.
// Default is true.
func WithLock(lock bool) Option {
	return func(c *Config) {
		c.Lock = lock
	}
}
