package composer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moffa90/go-espimage/config"
	"github.com/moffa90/go-espimage/esptool"
	"github.com/moffa90/go-espimage/flashsize"
	"github.com/moffa90/go-espimage/fsimage"
	"github.com/moffa90/go-espimage/image"
	"github.com/moffa90/go-espimage/partition"
)

// LockFileName is the lock file created in the build directory.
const LockFileName = ".espimage.lock"

// Composer turns the products of one firmware build into a single flashable
// image and keeps the compiled partition table in step with the flash chip.
type Composer struct {
	build  *config.BuildConfig
	config Config
}

// New creates a Composer for build with the given options.
//
// Example:
//
//	cfg, _ := config.LoadFile("espimage.yaml")
//	c := composer.New(cfg,
//	    composer.WithLogger(slog.Default()),
//	    composer.WithProgressCallback(progressFunc),
//	)
func New(build *config.BuildConfig, opts ...Option) *Composer {
	if build == nil {
		panic("build config cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Composer{
		build:  build,
		config: cfg,
	}
}

// Result describes a finished composition.
type Result struct {
	// OutputPath is the merged image
	OutputPath string

	// Size is the merged image length in bytes
	Size int

	// Digest is the BLAKE3 digest of the merged image, hex encoded
	Digest string

	// GzipPath is the compressed copy, empty unless enabled
	GzipPath string

	// Flash is the capacity decision
	Flash flashsize.Descriptor

	// Table is the partition table after any resize
	Table *partition.Table

	// Patched is true when the compiled partition table was rewritten
	Patched bool

	// PartitionDigest is the MD5 of the patched table, hex encoded
	PartitionDigest string

	// Filesystem is the built filesystem image, nil when none was built
	Filesystem *fsimage.Image

	// FilesystemOffset is where Filesystem is placed
	FilesystemOffset uint32

	// Segments lists every (offset, file) pair in the merged image
	Segments []esptool.Segment

	// MergeCommand is the equivalent esptool merge_bin argument list
	MergeCommand []string

	// UploadCommand is the replacement upload command line, nil when the
	// default upload command stands
	UploadCommand []string
}

// Compose runs the complete sequence:
//  1. Parse the partition table
//  2. Resolve the effective flash size, probing the device if uploading
//  3. Grow the filesystem partition in partitions.bin to the end of a larger chip
//  4. Build the filesystem image from the manifest
//  5. Merge sections, application and filesystem image and write the result
//  6. Synthesize an upload command when the filesystem needs explicit flashing
//
// A patched partition table is kept even if a later phase fails.
//
// Example:
//
//	res, err := c.Compose(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.OutputPath, res.Digest)
func (c *Composer) Compose(ctx context.Context) (*Result, error) {
	if err := c.build.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build config: %w", err)
	}
	configured, err := c.build.FlashSize()
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	if err := os.MkdirAll(c.build.BuildDir, 0o755); err != nil {
		return nil, fmt.Errorf("create build directory: %w", err)
	}
	if c.config.Lock {
		lock, err := acquireLock(filepath.Join(c.build.BuildDir, LockFileName))
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.release(); err != nil {
				c.logError("failed to release build lock", "error", err.Error())
			}
		}()
	}

	// Phase 1: Parse partition table
	if err := c.enterPhase(ctx, PhaseParsing, startTime); err != nil {
		return nil, err
	}

	table, err := partition.Parse(c.build.Partitions.CSV, partition.ParseOptions{AppPartition: c.build.AppPartition})
	if err != nil {
		return nil, &PhaseError{Phase: PhaseParsing, Err: err}
	}
	c.logTable(table)

	// Phase 2: Resolve flash size
	if err := c.enterPhase(ctx, PhaseResolving, startTime); err != nil {
		return nil, err
	}

	resolver := flashsize.NewResolver(c.probe(), c.config.Logger)
	desc := resolver.Resolve(ctx, configured, c.build.NeedsHardware())
	effective := desc.Effective()

	c.logDebug("flash size resolved",
		"configured", esptool.FormatSize(desc.Configured),
		"effective", esptool.FormatSize(effective),
		"overridden", desc.Overridden,
	)

	if err := table.Validate(effective); err != nil {
		return nil, &PhaseError{Phase: PhaseResolving, Err: err}
	}
	if err := c.checkAppSize(table.App()); err != nil {
		return nil, &PhaseError{Phase: PhaseResolving, Err: err}
	}

	res := &Result{Flash: desc, Table: table}

	// Phase 3: Patch partition table
	if err := c.enterPhase(ctx, PhasePatching, startTime); err != nil {
		return nil, err
	}

	binPath := c.build.PartitionsBin()
	if err := c.ensurePartitionsBin(table, binPath); err != nil {
		return nil, &PhaseError{Phase: PhasePatching, Err: err}
	}

	fs, hasFS := table.Filesystem(c.build.Filesystem.Partition)
	if desc.Overridden && hasFS {
		patched, digest, err := c.growFilesystem(table, fs, effective, binPath)
		if err != nil {
			return nil, &PhaseError{Phase: PhasePatching, Err: err}
		}
		if patched != nil {
			table = patched
			fs, _ = table.Find(fs.Name)
			res.Table = table
			res.Patched = true
			res.PartitionDigest = digest
		}
	}

	// Phase 4: Build filesystem image
	if err := c.enterPhase(ctx, PhaseFilesystem, startTime); err != nil {
		return nil, err
	}

	if hasFS {
		builder := fsimage.NewBuilder(c.filesystemTool(),
			fsimage.WithLogger(c.config.Logger),
			fsimage.WithHTTPClient(c.config.HTTPClient),
			fsimage.WithFetchTimeout(c.build.FetchTimeout()),
		)
		img, err := builder.Build(ctx, fsimage.ParseManifest(c.build.Filesystem.Files), c.build.StagingDir(), fs.Size)
		if err != nil {
			return nil, &PhaseError{Phase: PhaseFilesystem, Err: err}
		}
		if img != nil {
			res.Filesystem = img
			res.FilesystemOffset = fs.Offset
		}
	} else if strings.TrimSpace(c.build.Filesystem.Files) != "" {
		c.logWarn("partition table has no filesystem partition, ignoring filesystem files",
			"partition", c.build.Filesystem.Partition,
		)
	}

	// Phase 5: Merge
	if err := c.enterPhase(ctx, PhaseMerging, startTime); err != nil {
		return nil, err
	}

	regions, err := image.ParseSections(c.build.Sections)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseMerging, Err: err}
	}

	app := table.App()
	appRegion, err := image.ReadRegion(app.Name, app.Offset, c.build.FirmwarePath())
	if err != nil {
		return nil, &PhaseError{Phase: PhaseMerging, Err: err}
	}
	regions = append(regions, appRegion)

	var fsSegment *esptool.Segment
	if res.Filesystem != nil {
		fsRegion, err := image.ReadRegion(fs.Name, fs.Offset, res.Filesystem.Path)
		if err != nil {
			return nil, &PhaseError{Phase: PhaseMerging, Err: err}
		}
		regions = append(regions, fsRegion)
		fsSegment = &esptool.Segment{Offset: fs.Offset, Path: res.Filesystem.Path}
	}

	limit := image.AppLimit{Name: app.Name, MaxSize: c.maxAppSize(app)}
	data, err := image.NewMerger().Merge(regions, limit)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseMerging, Err: err}
	}

	res.OutputPath = c.build.OutputPath()
	if err := image.WriteFile(res.OutputPath, data); err != nil {
		return nil, &PhaseError{Phase: PhaseMerging, Err: err}
	}
	res.Size = len(data)
	res.Digest = image.Digest(data)

	if c.build.Output.Gzip {
		res.GzipPath = res.OutputPath + ".gz"
		if err := image.WriteGzip(res.GzipPath, data); err != nil {
			return nil, &PhaseError{Phase: PhaseMerging, Err: err}
		}
	}

	for _, r := range regions {
		res.Segments = append(res.Segments, esptool.Segment{Offset: r.Offset, Path: r.Path})
	}
	c.logLayout(res.Segments)

	res.MergeCommand = c.mergeCommand(effective, res.OutputPath, res.Segments)

	// Phase 6: Upload command
	if err := c.enterPhase(ctx, PhaseCommand, startTime); err != nil {
		return nil, err
	}

	base := res.Segments
	if fsSegment != nil {
		base = res.Segments[:len(res.Segments)-1]
	}
	args, err := SynthesizeUploadCommand(c.build, effective, base, fsSegment)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseCommand, Err: err}
	}
	if args != nil {
		name, argv := invocation(c.build).Command(args)
		res.UploadCommand = append([]string{name}, argv...)
		c.logInfo("using custom upload command to flash the filesystem image",
			"offset", esptool.FormatOffset(fsSegment.Offset),
			"command", strings.Join(res.UploadCommand, " "),
		)
	}

	// Complete
	c.reportProgress(PhaseComplete, startTime)

	c.logInfo("composition complete",
		"output", res.OutputPath,
		"bytes", res.Size,
		"blake3", res.Digest,
		"elapsed", time.Since(startTime).String(),
	)

	return res, nil
}

// ensurePartitionsBin compiles the table into path when the file is missing
// and compile_missing is set.
func (c *Composer) ensurePartitionsBin(table *partition.Table, path string) error {
	_, err := os.Stat(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) || !c.build.Partitions.CompileMissing {
		return nil
	}

	blob, err := partition.Compile(table)
	if err != nil {
		return fmt.Errorf("compile partition table: %w", err)
	}
	if err := image.WriteFile(path, blob); err != nil {
		return err
	}
	c.logInfo("compiled partition table", "path", path)
	return nil
}

// growFilesystem extends fs to the end of flash in both the parsed table and
// the compiled table at binPath. Returns a nil table when growing would
// collide with a later partition.
func (c *Composer) growFilesystem(table *partition.Table, fs partition.Record, effective uint32, binPath string) (*partition.Table, string, error) {
	newSize := effective - fs.Offset
	if newSize <= fs.Size {
		return nil, "", nil
	}

	patched, err := table.WithSize(fs.Name, newSize)
	if err != nil {
		var overlap *partition.OverlapError
		if errors.As(err, &overlap) {
			c.logWarn("filesystem partition cannot grow, keeping its size",
				"partition", fs.Name,
				"error", err.Error(),
			)
			return nil, "", nil
		}
		return nil, "", err
	}

	c.logInfo("overriding filesystem partition size",
		"partition", fs.Name,
		"from", fmt.Sprintf("0x%x", fs.Size),
		"to", fmt.Sprintf("0x%x", newSize),
	)

	digest, err := partition.PatchFile(binPath, fs.Name, newSize)
	if err != nil {
		return nil, "", err
	}

	c.logInfo("patched partition table",
		"path", binPath,
		"md5", hex.EncodeToString(digest[:]),
	)
	return patched, hex.EncodeToString(digest[:]), nil
}

// checkAppSize rejects an oversized application before any phase writes a
// file. Merge repeats the check on the bytes it actually reads.
func (c *Composer) checkAppSize(app partition.Record) error {
	info, err := os.Stat(c.build.FirmwarePath())
	if err != nil {
		return fmt.Errorf("read %s image: %w", app.Name, err)
	}
	limit := image.AppLimit{Name: app.Name, MaxSize: c.maxAppSize(app)}
	if info.Size() > int64(limit.MaxSize) {
		return &image.ApplicationTooLargeError{Name: app.Name, Size: int(info.Size()), MaxSize: limit.MaxSize}
	}
	return nil
}

// maxAppSize returns the application ceiling: the configured maximum when
// set, never more than the application partition.
func (c *Composer) maxAppSize(app partition.Record) uint32 {
	limit := c.build.Flash.MaximumSize
	if limit == 0 || limit > app.Size {
		return app.Size
	}
	return limit
}

// mergeCommand renders the esptool merge_bin equivalent of the merged image.
func (c *Composer) mergeCommand(flashSize uint32, output string, segments []esptool.Segment) []string {
	args, err := esptool.BuildMergeBinCmd(flashParams(c.build, flashSize), output, segments)
	if err != nil {
		c.logDebug("no merge_bin equivalent", "error", err.Error())
		return nil
	}
	name, argv := invocation(c.build).Command(args)
	cmd := append([]string{name}, argv...)

	if c.build.Output.PrintCommands {
		c.logInfo("merge_bin equivalent", "command", strings.Join(cmd, " "))
	} else {
		c.logDebug("merge_bin equivalent", "command", strings.Join(cmd, " "))
	}
	return cmd
}

func (c *Composer) probe() flashsize.Probe {
	if c.config.Probe != nil {
		return c.config.Probe
	}
	return &flashsize.EsptoolProbe{
		Invocation: invocation(c.build),
		Conn: esptool.Connection{
			Port: c.build.Upload.Port,
			Baud: c.build.Upload.Speed,
		},
		Timeout: c.build.ProbeTimeout(),
		Runner:  c.config.Runner,
	}
}

func (c *Composer) filesystemTool() fsimage.Tool {
	if c.config.FilesystemTool != nil {
		return c.config.FilesystemTool
	}
	return &fsimage.MkfsTool{
		Path:   c.build.Filesystem.Tool,
		Output: c.build.FilesystemImagePath(),
		Runner: c.config.Runner,
	}
}

// enterPhase stops on cancellation and reports the start of phase.
func (c *Composer) enterPhase(ctx context.Context, phase string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	c.reportProgress(phase, start)
	return nil
}

// reportProgress calls the progress callback if configured.
func (c *Composer) reportProgress(phase string, start time.Time) {
	if c.config.ProgressCallback == nil {
		return
	}
	step := 0
	for i, p := range phaseOrder {
		if p == phase {
			step = i + 1
			break
		}
	}
	c.config.ProgressCallback(Progress{
		Phase:       phase,
		Step:        step,
		TotalSteps:  len(phaseOrder),
		Percentage:  float64(step-1) / float64(len(phaseOrder)-1) * 100,
		ElapsedTime: time.Since(start),
	})
}

func (c *Composer) logTable(table *partition.Table) {
	for _, r := range table.Records {
		c.logInfo("partition",
			"name", r.Name,
			"type", r.Type.String(),
			"subtype", r.Subtype,
			"offset", fmt.Sprintf("0x%x", r.Offset),
			"size", fmt.Sprintf("0x%x", r.Size),
		)
	}
}

func (c *Composer) logLayout(segments []esptool.Segment) {
	for _, s := range segments {
		c.logInfo("region", "offset", esptool.FormatOffset(s.Offset), "file", s.Path)
	}
}

// logDebug logs a debug message if a logger is configured.
func (c *Composer) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (c *Composer) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if a logger is configured.
func (c *Composer) logWarn(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Composer) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}
