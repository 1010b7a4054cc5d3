// espimage composes the products of an ESP32 firmware build into a single
// flashable image.
//
// It reads a build description (YAML, or JSON with comments), resizes the
// filesystem partition when the attached chip is larger than configured,
// packs the filesystem manifest into an image, and writes
// <build_dir>/<prog_name>.factory.bin. When the filesystem image needs an
// explicit flash offset, the replacement esptool upload command is printed.
//
// Usage:
//
//	espimage --config espimage.yaml [--upload] [--port /dev/ttyUSB0]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/moffa90/go-espimage/composer"
	"github.com/moffa90/go-espimage/config"
)

// usageError is a command line problem; it exits with status 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
func (e *usageError) ExitCode() int { return 2 }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

type options struct {
	configPath    string
	partitions    string
	buildDir      string
	output        string
	flashSize     string
	port          string
	upload        bool
	gzip          bool
	printCommands bool
	noLock        bool
	logLevel      string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("espimage", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "build description (.yaml, .json or .jsonc)")
	flagSet.StringVar(&opts.partitions, "partitions", "", "partition table CSV (overrides partitions.csv)")
	flagSet.StringVar(&opts.buildDir, "build-dir", "", "build directory (overrides build_dir)")
	flagSet.StringVarP(&opts.output, "output", "o", "", "merged image path (overrides output.name)")
	flagSet.StringVar(&opts.flashSize, "flash-size", "", "configured flash size, e.g. 4MB (overrides flash.size)")
	flagSet.StringVarP(&opts.port, "port", "p", "", "serial port for the flash size probe and upload command")
	flagSet.BoolVar(&opts.upload, "upload", false, "the build ends in an upload: probe the attached chip")
	flagSet.BoolVar(&opts.gzip, "gzip", false, "also write a gzip copy of the merged image")
	flagSet.BoolVar(&opts.printCommands, "print-commands", false, "log the equivalent esptool merge_bin command")
	flagSet.BoolVar(&opts.noLock, "no-lock", false, "do not lock the build directory")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet, stderr)
			return nil
		}
		return &usageError{err: err}
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return &usageError{err: fmt.Errorf("unexpected argument: %s", rest[0])}
	}

	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return &usageError{err: err}
	}
	logger := newLogger(stderr, level)

	cfg := config.Default()
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	applyOverrides(cfg, flagSet, &opts)

	c := composer.New(cfg,
		composer.WithLogger(logger),
		composer.WithLock(!opts.noLock),
		composer.WithProgressCallback(func(p composer.Progress) {
			logger.Debug("phase", "phase", p.Phase, "step", p.Step, "of", p.TotalSteps)
		}),
	)

	res, err := c.Compose(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.OutputPath)
	if res.UploadCommand != nil {
		fmt.Fprintln(stdout, strings.Join(res.UploadCommand, " "))
	}
	return nil
}

// applyOverrides copies the flags the user set onto cfg.
func applyOverrides(cfg *config.BuildConfig, flagSet *pflag.FlagSet, opts *options) {
	if flagSet.Changed("partitions") {
		cfg.Partitions.CSV = opts.partitions
	}
	if flagSet.Changed("build-dir") {
		cfg.BuildDir = opts.buildDir
	}
	if flagSet.Changed("output") {
		cfg.Output.Name = opts.output
	}
	if flagSet.Changed("flash-size") {
		cfg.Flash.Size = opts.flashSize
	}
	if flagSet.Changed("port") {
		cfg.Upload.Port = opts.port
	}
	if flagSet.Changed("upload") {
		cfg.Upload.Enabled = opts.upload
	}
	if flagSet.Changed("gzip") {
		cfg.Output.Gzip = opts.gzip
	}
	if flagSet.Changed("print-commands") {
		cfg.Output.PrintCommands = opts.printCommands
	}
}

// newLogger uses a text handler on a terminal and JSON otherwise.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	var handler slog.Handler
	handlerOptions := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		handler = slog.NewTextHandler(w, handlerOptions)
	} else {
		handler = slog.NewJSONHandler(w, handlerOptions)
	}
	return slog.New(handler)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q", s)
	}
	return level, nil
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, `espimage composes an ESP32 build into one flashable image.

Usage:
  espimage --config espimage.yaml [flags]

Flags:
%s`, flagSet.FlagUsages())
}
