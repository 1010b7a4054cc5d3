package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "partitions.csv is required") {
		t.Errorf("Validate() = %v, want partitions.csv error", err)
	}

	cfg.Partitions.CSV = "partitions.csv"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed on defaults: %v", err)
	}

	size, err := cfg.FlashSize()
	if err != nil || size != 0x400000 {
		t.Errorf("FlashSize() = 0x%X, %v, want 0x400000", size, err)
	}
	if cfg.ProbeTimeout() != 10*time.Second {
		t.Errorf("ProbeTimeout() = %v, want 10s", cfg.ProbeTimeout())
	}
	if cfg.NeedsHardware() {
		t.Error("defaults must not need hardware")
	}

	wantPaths := map[string]string{
		"PartitionsBin":       filepath.Join("build", "partitions.bin"),
		"FirmwarePath":        filepath.Join("build", "firmware.bin"),
		"OutputPath":          filepath.Join("build", "firmware.factory.bin"),
		"FilesystemImagePath": filepath.Join("build", "littlefs.bin"),
		"StagingDir":          filepath.Join("build", "littlefs_data"),
	}
	gotPaths := map[string]string{
		"PartitionsBin":       cfg.PartitionsBin(),
		"FirmwarePath":        cfg.FirmwarePath(),
		"OutputPath":          cfg.OutputPath(),
		"FilesystemImagePath": cfg.FilesystemImagePath(),
		"StagingDir":          cfg.StagingDir(),
	}
	for name, want := range wantPaths {
		if gotPaths[name] != want {
			t.Errorf("%s() = %q, want %q", name, gotPaths[name], want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("ESPIMAGE_TEST_ROOT", "/work")

	tests := []struct {
		name    string
		file    string
		content string
		check   func(t *testing.T, cfg *BuildConfig)
		wantErr bool
		errMsg  string
	}{
		{
			name: "yaml",
			file: "espimage.yaml",
			content: `
build_dir: ${ESPIMAGE_TEST_ROOT}/.pio/build/esp32dev
prog_name: wled
partitions:
  csv: tools/WLED_ESP32_4MB_1MB_FS.csv
flash:
  size: 16MB
  maximum_size: 1966080
upload:
  enabled: true
  port: /dev/ttyUSB0
filesystem:
  default_offset: 0x290000
  files: |
    data
    no_files
output:
  name: ${BUILD_DIR}/release/wled.bin
  gzip: true
`,
			check: func(t *testing.T, cfg *BuildConfig) {
				if cfg.BuildDir != "/work/.pio/build/esp32dev" {
					t.Errorf("BuildDir = %q", cfg.BuildDir)
				}
				if cfg.OutputPath() != "/work/.pio/build/esp32dev/release/wled.bin" {
					t.Errorf("OutputPath() = %q", cfg.OutputPath())
				}
				if cfg.Flash.MaximumSize != 0x1E0000 {
					t.Errorf("MaximumSize = 0x%X", cfg.Flash.MaximumSize)
				}
				if cfg.Filesystem.DefaultOffset != 0x290000 {
					t.Errorf("DefaultOffset = 0x%X", cfg.Filesystem.DefaultOffset)
				}
				if !strings.Contains(cfg.Filesystem.Files, "no_files") {
					t.Errorf("Files = %q", cfg.Filesystem.Files)
				}
				if !cfg.NeedsHardware() {
					t.Error("NeedsHardware() = false, want true")
				}
				if cfg.Flash.Mode != "dio" {
					t.Errorf("Mode = %q, want default dio", cfg.Flash.Mode)
				}
				if !cfg.Output.Gzip {
					t.Error("Gzip = false")
				}
			},
		},
		{
			name: "jsonc",
			file: "espimage.jsonc",
			content: `{
  // compiled table lives next to the CSV
  "partitions": {"csv": "p.csv", "bin": "${HOME:-/root}/p.bin", "compile_missing": true},
  "flash": {"size": "8MB", "mode": "qio"},
  "upload": {"protocol": "espota"},
}`,
			check: func(t *testing.T, cfg *BuildConfig) {
				if !cfg.Partitions.CompileMissing {
					t.Error("CompileMissing = false")
				}
				if cfg.Flash.Mode != "qio" || cfg.Flash.Size != "8MB" {
					t.Errorf("Flash = %+v", cfg.Flash)
				}
				if strings.Contains(cfg.Partitions.Bin, "${") {
					t.Errorf("Bin not expanded: %q", cfg.Partitions.Bin)
				}
				if cfg.NeedsHardware() {
					t.Error("espota must not need hardware")
				}
			},
		},
		{
			name:    "bad yaml",
			file:    "bad.yaml",
			content: "flash: [",
			wantErr: true,
			errMsg:  "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}

			cfg, err := LoadFile(path)

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFile() failed: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() failed: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.ProgName = ""
	cfg.Flash.Size = "4"
	cfg.Flash.Mode = "fast"
	cfg.Flash.Freq = "100m"
	cfg.Upload.ProbeTimeout = "soon"
	cfg.Filesystem.FetchTimeout = "-1s"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	for _, want := range []string{
		"prog_name is required",
		"partitions.csv is required",
		"flash.size",
		`flash.mode "fast"`,
		`flash.freq "100m"`,
		"upload.probe_timeout",
		"filesystem.fetch_timeout",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("ESPIMAGE_TEST_VAR", "env")

	tests := []struct {
		in   string
		vars map[string]string
		want string
	}{
		{"${BUILD_DIR}/x", map[string]string{"BUILD_DIR": "b"}, "b/x"},
		{"${ESPIMAGE_TEST_VAR}", nil, "env"},
		{"${ESPIMAGE_TEST_UNSET:-fallback}", nil, "fallback"},
		{"${ESPIMAGE_TEST_UNSET}", nil, ""},
		{"plain", nil, "plain"},
	}

	for _, tt := range tests {
		if got := expandVars(tt.in, tt.vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
