// Package config holds the build description passed to every composer step.
//
// A BuildConfig replaces the implicit build environment of a firmware
// project: where the build products live, the partition table, the flash
// parameters, the upload settings and the filesystem manifest. Files are YAML
// or JSON with comments:
//
//	build_dir: .pio/build/esp32dev
//	prog_name: firmware
//	partitions:
//	  csv: partitions/default_16MB.csv
//	flash:
//	  size: 4MB
//	filesystem:
//	  files: |
//	    data
//	    https://example.com/certs/root.pem ca.crt
//
// Path fields expand ${VAR} and ${VAR:-default}; BUILD_DIR refers to the
// configured build directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-espimage/esptool"
	"github.com/moffa90/go-espimage/fsimage"
	"github.com/moffa90/go-espimage/partition"
)

// Upload protocols.
const (
	ProtocolEsptool = "esptool"
)

// BuildConfig describes one firmware build.
type BuildConfig struct {
	// BuildDir holds the compiled products and all outputs
	BuildDir string `yaml:"build_dir"`

	// ProgName is the firmware base name (<prog_name>.bin)
	ProgName string `yaml:"prog_name"`

	// Chip is the esptool chip name
	Chip string `yaml:"chip"`

	// AppPartition names the partition that receives the application
	AppPartition string `yaml:"app_partition"`

	// Sections lists extra images as "offset path" pairs, for example
	// "0x1000 bootloader.bin 0x8000 partitions.bin 0xe000 boot_app0.bin"
	Sections string `yaml:"sections"`

	Partitions PartitionsConfig `yaml:"partitions"`
	Flash      FlashConfig      `yaml:"flash"`
	Upload     UploadConfig     `yaml:"upload"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Output     OutputConfig     `yaml:"output"`
}

// PartitionsConfig locates the partition table.
type PartitionsConfig struct {
	// CSV is the source table
	CSV string `yaml:"csv"`

	// Bin is the compiled table; empty means <build_dir>/partitions.bin
	Bin string `yaml:"bin"`

	// CompileMissing compiles CSV into Bin when Bin does not exist
	CompileMissing bool `yaml:"compile_missing"`
}

// FlashConfig holds the flash parameters passed to esptool.
type FlashConfig struct {
	Mode string `yaml:"mode"`
	Freq string `yaml:"freq"`

	// Size is the configured flash size, for example "4MB"
	Size string `yaml:"size"`

	// MaximumSize is the largest application image in bytes; zero means the
	// application partition size
	MaximumSize uint32 `yaml:"maximum_size"`
}

// UploadConfig describes the upload target.
type UploadConfig struct {
	// Enabled is set when the build ends in an upload, which allows probing
	// the attached device
	Enabled bool `yaml:"enabled"`

	Protocol    string `yaml:"protocol"`
	Uploader    string `yaml:"uploader"`
	Python      string `yaml:"python"`
	Port        string `yaml:"port"`
	Speed       int    `yaml:"speed"`
	BeforeReset string `yaml:"before_reset"`
	AfterReset  string `yaml:"after_reset"`

	// ProbeTimeout bounds the flash_id probe, as a Go duration
	ProbeTimeout string `yaml:"probe_timeout"`
}

// FilesystemConfig describes the filesystem image.
type FilesystemConfig struct {
	// Partition names the filesystem partition
	Partition string `yaml:"partition"`

	// Tool is the mklittlefs-compatible image tool
	Tool string `yaml:"tool"`

	// Files is the manifest, one entry per line
	Files string `yaml:"files"`

	// Staging is the directory inputs are copied into; empty means
	// <build_dir>/littlefs_data
	Staging string `yaml:"staging"`

	// ImageName is the filesystem image file inside the build directory
	ImageName string `yaml:"image_name"`

	// DefaultOffset is the filesystem offset the stock upload command
	// already writes; zero means none
	DefaultOffset uint32 `yaml:"default_offset"`

	// FetchTimeout bounds each remote download, as a Go duration
	FetchTimeout string `yaml:"fetch_timeout"`
}

// OutputConfig describes the merged image.
type OutputConfig struct {
	// Name is the merged image path; empty means
	// <build_dir>/<prog_name>.factory.bin
	Name string `yaml:"name"`

	// Gzip also writes <name>.gz
	Gzip bool `yaml:"gzip"`

	// PrintCommands logs the equivalent esptool merge_bin command
	PrintCommands bool `yaml:"print_commands"`
}

// Default returns the configuration used when a file sets nothing.
func Default() *BuildConfig {
	return &BuildConfig{
		BuildDir:     "build",
		ProgName:     "firmware",
		Chip:         "esp32",
		AppPartition: partition.DefaultAppPartition,
		Flash: FlashConfig{
			Mode: esptool.ModeDIO,
			Freq: esptool.Freq40M,
			Size: "4MB",
		},
		Upload: UploadConfig{
			Protocol:     ProtocolEsptool,
			Uploader:     esptool.DefaultUploader,
			Python:       "python3",
			Speed:        esptool.DefaultBaud,
			BeforeReset:  esptool.ResetDefault,
			AfterReset:   esptool.ResetHard,
			ProbeTimeout: "10s",
		},
		Filesystem: FilesystemConfig{
			Partition:    "spiffs",
			Tool:         fsimage.DefaultMkfsTool,
			ImageName:    "littlefs.bin",
			FetchTimeout: "30s",
		},
	}
}

// LoadFile loads a configuration file over Default. Files ending in .json or
// .jsonc may contain comments and trailing commas.
func LoadFile(path string) (*BuildConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ExpandVariables()
	return cfg, nil
}

// ExpandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *BuildConfig) ExpandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.BuildDir = expandVars(c.BuildDir, vars)
	vars["BUILD_DIR"] = c.BuildDir

	c.Partitions.CSV = expandVars(c.Partitions.CSV, vars)
	c.Partitions.Bin = expandVars(c.Partitions.Bin, vars)
	c.Sections = expandVars(c.Sections, vars)
	c.Filesystem.Tool = expandVars(c.Filesystem.Tool, vars)
	c.Filesystem.Staging = expandVars(c.Filesystem.Staging, vars)
	c.Output.Name = expandVars(c.Output.Name, vars)
	c.Upload.Uploader = expandVars(c.Upload.Uploader, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem at once.
func (c *BuildConfig) Validate() error {
	var errs []error

	if c.BuildDir == "" {
		errs = append(errs, fmt.Errorf("build_dir is required"))
	}
	if c.ProgName == "" {
		errs = append(errs, fmt.Errorf("prog_name is required"))
	}
	if c.Chip == "" {
		errs = append(errs, fmt.Errorf("chip is required"))
	}
	if c.AppPartition == "" {
		errs = append(errs, fmt.Errorf("app_partition is required"))
	}
	if c.Partitions.CSV == "" {
		errs = append(errs, fmt.Errorf("partitions.csv is required"))
	}

	if _, err := esptool.ParseSize(c.Flash.Size); err != nil {
		errs = append(errs, fmt.Errorf("flash.size: %w", err))
	}
	if !esptool.ValidFlashMode(c.Flash.Mode) {
		errs = append(errs, fmt.Errorf("flash.mode %q is not a known flash mode", c.Flash.Mode))
	}
	if !esptool.ValidFlashFreq(c.Flash.Freq) {
		errs = append(errs, fmt.Errorf("flash.freq %q is not a known flash frequency", c.Flash.Freq))
	}

	if c.Upload.Protocol == "" {
		errs = append(errs, fmt.Errorf("upload.protocol is required"))
	}
	if c.Upload.Speed < 0 {
		errs = append(errs, fmt.Errorf("upload.speed must not be negative"))
	}
	if _, err := parseDuration(c.Upload.ProbeTimeout); err != nil {
		errs = append(errs, fmt.Errorf("upload.probe_timeout: %w", err))
	}
	if _, err := parseDuration(c.Filesystem.FetchTimeout); err != nil {
		errs = append(errs, fmt.Errorf("filesystem.fetch_timeout: %w", err))
	}
	if c.Filesystem.ImageName == "" {
		errs = append(errs, fmt.Errorf("filesystem.image_name is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// FlashSize returns the configured flash size in bytes.
func (c *BuildConfig) FlashSize() (uint32, error) {
	return esptool.ParseSize(c.Flash.Size)
}

// ProbeTimeout returns upload.probe_timeout, zero when unset or invalid.
func (c *BuildConfig) ProbeTimeout() time.Duration {
	d, _ := parseDuration(c.Upload.ProbeTimeout)
	return d
}

// FetchTimeout returns filesystem.fetch_timeout, zero when unset or invalid.
func (c *BuildConfig) FetchTimeout() time.Duration {
	d, _ := parseDuration(c.Filesystem.FetchTimeout)
	return d
}

// PartitionsBin returns the compiled partition table path.
func (c *BuildConfig) PartitionsBin() string {
	if c.Partitions.Bin != "" {
		return c.Partitions.Bin
	}
	return filepath.Join(c.BuildDir, "partitions.bin")
}

// FirmwarePath returns the application image path.
func (c *BuildConfig) FirmwarePath() string {
	return filepath.Join(c.BuildDir, c.ProgName+".bin")
}

// OutputPath returns the merged image path.
func (c *BuildConfig) OutputPath() string {
	if c.Output.Name != "" {
		return c.Output.Name
	}
	return filepath.Join(c.BuildDir, c.ProgName+".factory.bin")
}

// FilesystemImagePath returns the filesystem image path.
func (c *BuildConfig) FilesystemImagePath() string {
	return filepath.Join(c.BuildDir, c.Filesystem.ImageName)
}

// StagingDir returns the filesystem staging directory.
func (c *BuildConfig) StagingDir() string {
	if c.Filesystem.Staging != "" {
		return c.Filesystem.Staging
	}
	return filepath.Join(c.BuildDir, "littlefs_data")
}

// NeedsHardware reports whether the build may contact the attached device.
func (c *BuildConfig) NeedsHardware() bool {
	return c.Upload.Enabled && c.Upload.Protocol == ProtocolEsptool
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}
