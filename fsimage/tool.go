package fsimage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/moffa90/go-espimage/esptool"
)

// DefaultMkfsTool is the image tool used when none is configured.
const DefaultMkfsTool = "mklittlefs"

// Tool packs a staged directory into a filesystem image of exactly size
// bytes and returns the image path.
type Tool interface {
	Build(ctx context.Context, dir string, size uint32) (string, error)
}

// MkfsTool runs a mklittlefs-compatible program:
//
//	mklittlefs -c <dir> -s <size> <output>
type MkfsTool struct {
	// Path is the tool executable; empty means DefaultMkfsTool
	Path string

	// Output is the image file to create
	Output string

	// Runner executes the tool; nil means esptool.ExecRunner
	Runner esptool.Runner
}

// Build implements Tool.
func (m *MkfsTool) Build(ctx context.Context, dir string, size uint32) (string, error) {
	if m.Output == "" {
		return "", fmt.Errorf("mkfs: output path is required")
	}
	tool := m.Path
	if tool == "" {
		tool = DefaultMkfsTool
	}
	runner := m.Runner
	if runner == nil {
		runner = esptool.ExecRunner{}
	}

	if _, err := runner.Run(ctx, tool, "-c", dir, "-s", strconv.FormatUint(uint64(size), 10), m.Output); err != nil {
		return "", fmt.Errorf("mkfs: %w", err)
	}
	return m.Output, nil
}
