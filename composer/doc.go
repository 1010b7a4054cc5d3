// Package composer provides a high-level API for turning the products of an
// ESP32 firmware build into a single flashable image.
//
// # Overview
//
// This package orchestrates the complete composition sequence:
//   - Parsing the partition table and checking it against the flash size
//   - Probing the attached chip when the build ends in an upload
//   - Growing the filesystem partition in partitions.bin on a larger chip
//   - Building the filesystem image from the manifest
//   - Merging sections, application and filesystem image over erased flash
//   - Synthesizing an esptool upload command when the filesystem needs one
//
// An application larger than its partition (or flash.maximum_size) is
// rejected before any file is written.
//
// # Basic Usage
//
// The simplest way to compose a build:
//
//	cfg, err := config.LoadFile("espimage.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := composer.New(cfg).Compose(context.Background())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.OutputPath)
//
// # Progress Tracking
//
// Track composition progress with a callback:
//
//	c := composer.New(cfg,
//	    composer.WithProgressCallback(func(p composer.Progress) {
//	        fmt.Printf("[%s] %.1f%% - Step %d/%d\n",
//	            p.Phase, p.Percentage, p.Step, p.TotalSteps)
//	    }),
//	)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	c := composer.New(cfg,
//	    composer.WithLogger(slog.Default()),
//	    composer.WithProbe(myProbe),
//	    composer.WithFilesystemTool(myTool),
//	    composer.WithHTTPClient(client),
//	    composer.WithLock(false),
//	)
//
// # Error Handling
//
// Failures inside a phase are wrapped in PhaseError; use errors.As for the
// cause:
//   - image.ApplicationTooLargeError: application exceeds its maximum size
//   - partition.CorruptPartitionTableError: partitions.bin cannot be patched
//   - partition.MalformedTableError, partition.OverlapError: bad CSV table
//   - partition.CapacityError: table ends beyond the flash size
//   - LockedError: another composition holds the build directory
//
// # Hardware Independence
//
// The flash probe and the filesystem tool are interfaces. Without options
// the composer runs esptool and mklittlefs; tests and callers can supply
// their own flashsize.Probe and fsimage.Tool.
package composer
