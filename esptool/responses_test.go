package esptool

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

const flashIDOutput = `esptool.py v4.7.0
Found 1 serial ports
Serial port /dev/ttyUSB0
Connecting....
Detecting chip type... ESP32
Chip is ESP32-D0WD-V3 (revision v3.0)
Manufacturer: 20
Device: 4018
Detected flash size: 16MB
Hard resetting via RTS pin...
`

func TestParseFlashIDResponse(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    uint32
		wantErr bool
		errMsg  string
	}{
		{
			name:   "full output",
			output: flashIDOutput,
			want:   16 * MB,
		},
		{
			name:   "indented line",
			output: "  Detected flash size: 4MB\r\n",
			want:   4 * MB,
		},
		{
			name:    "no size line",
			output:  "A fatal error occurred: Failed to connect to ESP32\n",
			wantErr: true,
			errMsg:  "flash size not reported",
		},
		{
			name:    "unknown size",
			output:  "Detected flash size: Unknown\n",
			wantErr: true,
			errMsg:  "invalid flash size",
		},
		{
			name:    "empty output",
			output:  "",
			wantErr: true,
			errMsg:  "flash size not reported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFlashIDResponse([]byte(tt.output))

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("size = 0x%X, want 0x%X", got, tt.want)
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		token   string
		want    uint32
		wantErr bool
	}{
		{token: "4MB", want: 0x400000},
		{token: "16MB", want: 0x1000000},
		{token: " 2mb ", want: 0x200000},
		{token: "512KB", want: 0x80000},
		{token: "4M", wantErr: true},
		{token: "0MB", wantErr: true},
		{token: "MB", wantErr: true},
		{token: "", wantErr: true},
		{token: "8192MB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseSize(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseSize(%q) = 0x%X, want error", tt.token, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = 0x%X, want 0x%X", tt.token, got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	if got := FormatSize(0x400000); got != "4MB" {
		t.Errorf("FormatSize(4MB) = %q", got)
	}
	if got := FormatSize(0x80000 + 0x400000); got != "4608KB" {
		t.Errorf("FormatSize(4.5MB) = %q", got)
	}
}

func TestToolError(t *testing.T) {
	err := &ToolError{Tool: "mklittlefs", ExitCode: 2, Stderr: "image too small"}
	msg := err.Error()
	if !strings.Contains(msg, "mklittlefs failed with exit code 2") || !strings.Contains(msg, "image too small") {
		t.Errorf("Error() = %q", msg)
	}

	wrapped := errors.Join(errors.New("build filesystem"), err)
	if !IsToolError(wrapped) {
		t.Error("IsToolError(wrapped) = false")
	}
	if IsToolError(errors.New("plain")) {
		t.Error("IsToolError(plain) = true")
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ctx := context.Background()
	var r ExecRunner

	out, err := r.Run(ctx, "sh", "-c", "echo 'Detected flash size: 8MB'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size, err := ParseFlashIDResponse(out); err != nil || size != 8*MB {
		t.Errorf("parsed = 0x%X, %v", size, err)
	}

	_, err = r.Run(ctx, "sh", "-c", "echo boom >&2; exit 3")
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want *ToolError", err)
	}
	if te.ExitCode != 3 || te.Stderr != "boom" {
		t.Errorf("ToolError = %+v", te)
	}

	_, err = r.Run(ctx, "definitely-not-a-real-tool-xyz")
	if !errors.As(err, &te) || te.ExitCode != -1 {
		t.Errorf("missing tool error = %v", err)
	}

	timeout, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = r.Run(timeout, "sh", "-c", "exec sleep 5")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout error = %v, want deadline exceeded", err)
	}
}
