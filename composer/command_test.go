package composer

import (
	"reflect"
	"strings"
	"testing"

	"github.com/moffa90/go-espimage/config"
	"github.com/moffa90/go-espimage/esptool"
)

func TestSynthesizeUploadCommand(t *testing.T) {
	segments := []esptool.Segment{
		{Offset: 0x1000, Path: "bootloader.bin"},
		{Offset: 0x10000, Path: "firmware.bin"},
	}
	fs := &esptool.Segment{Offset: 0x310000, Path: "littlefs.bin"}

	tests := []struct {
		name    string
		modify  func(c *config.BuildConfig)
		fs      *esptool.Segment
		want    []string
		wantErr bool
		errMsg  string
	}{
		{
			name: "relocated filesystem",
			modify: func(c *config.BuildConfig) {
				c.Upload.Port = "/dev/ttyUSB0"
				c.Upload.Speed = 921600
				c.Filesystem.DefaultOffset = 0x290000
			},
			fs: fs,
			want: []string{
				"--chip", "esp32",
				"--port", "/dev/ttyUSB0",
				"--baud", "921600",
				"--before", "default_reset",
				"--after", "hard_reset",
				"write_flash", "-z",
				"--flash_mode", "dio",
				"--flash_freq", "40m",
				"--flash_size", "8MB",
				"0x1000", "bootloader.bin",
				"0x10000", "firmware.bin",
				"0x310000", "littlefs.bin",
			},
		},
		{
			name:   "no filesystem image",
			modify: func(c *config.BuildConfig) {},
			fs:     nil,
			want:   nil,
		},
		{
			name: "filesystem at default offset",
			modify: func(c *config.BuildConfig) {
				c.Filesystem.DefaultOffset = 0x310000
			},
			fs:   fs,
			want: nil,
		},
		{
			name: "protocol without offsets",
			modify: func(c *config.BuildConfig) {
				c.Upload.Protocol = "espota"
			},
			fs:   fs,
			want: nil,
		},
		{
			name: "invalid flash mode",
			modify: func(c *config.BuildConfig) {
				c.Flash.Mode = "fast"
			},
			fs:      fs,
			wantErr: true,
			errMsg:  "invalid flash mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)

			got, err := SynthesizeUploadCommand(cfg, 8*esptool.MB, segments, tt.fs)

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
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SynthesizeUploadCommand() =\n%v\nwant\n%v", got, tt.want)
			}
		})
	}
}

func TestSynthesizeUploadCommandKeepsSegments(t *testing.T) {
	segments := make([]esptool.Segment, 1, 4)
	segments[0] = esptool.Segment{Offset: 0x10000, Path: "firmware.bin"}

	_, err := SynthesizeUploadCommand(config.Default(), 4*esptool.MB, segments,
		&esptool.Segment{Offset: 0x290000, Path: "littlefs.bin"})
	if err != nil {
		t.Fatal(err)
	}
	if extra := segments[:2]; extra[1].Path != "" {
		t.Errorf("caller's backing array was modified: %v", extra)
	}
}
