package esptool

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseFlashIDResponse extracts the flash capacity from flash_id output.
//
// Relevant line:
//
//	Detected flash size: 4MB
//
// Returns the size in bytes, or an error when no such line is present or the
// token cannot be parsed.
func ParseFlashIDResponse(output []byte) (uint32, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		token, ok := strings.CutPrefix(line, DetectedFlashSizePrefix)
		if !ok {
			continue
		}
		size, err := ParseSize(token)
		if err != nil {
			return 0, fmt.Errorf("flash_id: %w", err)
		}
		return size, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("flash_id: read output: %w", err)
	}
	return 0, fmt.Errorf("flash_id: flash size not reported")
}

// ParseSize converts a size token such as "4MB" or "512KB" to bytes.
func ParseSize(token string) (uint32, error) {
	s := strings.ToUpper(strings.TrimSpace(token))

	var unit uint64
	switch {
	case strings.HasSuffix(s, "MB"):
		unit = MB
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		unit = KB
		s = strings.TrimSuffix(s, "KB")
	default:
		return 0, fmt.Errorf("invalid flash size %q: expected a KB or MB suffix", token)
	}

	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid flash size %q", token)
	}

	size := n * unit
	if size > 0xFFFFFFFF {
		return 0, fmt.Errorf("flash size %q exceeds 4GB", token)
	}
	return uint32(size), nil
}

// FormatSize renders a byte count as a size token, preferring MB.
func FormatSize(size uint32) string {
	if size%MB == 0 {
		return fmt.Sprintf("%dMB", size/MB)
	}
	return fmt.Sprintf("%dKB", size/KB)
}
