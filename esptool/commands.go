package esptool

import (
	"fmt"
	"strconv"
)

// BuildFlashIDCmd constructs a flash_id argument list.
//
// Structure:
//
//	[--port PORT] [--baud BAUD] flash_id
func BuildFlashIDCmd(conn Connection) []string {
	args := make([]string, 0, 5)
	if conn.Port != "" {
		args = append(args, "--port", conn.Port)
	}
	if conn.Baud > 0 {
		args = append(args, "--baud", strconv.Itoa(conn.Baud))
	}
	return append(args, CmdFlashID)
}

// BuildMergeBinCmd constructs a merge_bin argument list producing output.
//
// Structure:
//
//	--chip CHIP merge_bin -o OUTPUT --flash_mode M --flash_freq F --flash_size S [OFFSET FILE]...
func BuildMergeBinCmd(params FlashParams, output string, segments []Segment) ([]string, error) {
	if output == "" {
		return nil, fmt.Errorf("merge_bin: output path is required")
	}
	if err := validate(params, segments); err != nil {
		return nil, fmt.Errorf("merge_bin: %w", err)
	}

	args := make([]string, 0, 11+2*len(segments))
	args = append(args, "--chip", params.Chip, CmdMergeBin, "-o", output)
	args = appendFlashParams(args, params)
	return appendSegments(args, segments), nil
}

// BuildWriteFlashCmd constructs a write_flash argument list.
//
// Structure:
//
//	--chip CHIP --port PORT --baud BAUD --before B --after A write_flash -z
//	    --flash_mode M --flash_freq F --flash_size S [OFFSET FILE]...
//
// The segments replace whatever the default upload command would flash, so
// callers pass every region that must land on the chip.
func BuildWriteFlashCmd(params FlashParams, conn Connection, segments []Segment) ([]string, error) {
	if err := validate(params, segments); err != nil {
		return nil, fmt.Errorf("write_flash: %w", err)
	}

	baud := conn.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	before := conn.Before
	if before == "" {
		before = ResetDefault
	}
	after := conn.After
	if after == "" {
		after = ResetHard
	}

	args := make([]string, 0, 18+2*len(segments))
	args = append(args, "--chip", params.Chip)
	if conn.Port != "" {
		args = append(args, "--port", conn.Port)
	}
	args = append(args,
		"--baud", strconv.Itoa(baud),
		"--before", before,
		"--after", after,
		CmdWriteFlash, "-z",
	)
	args = appendFlashParams(args, params)
	return appendSegments(args, segments), nil
}

// validate checks the flags and segment list shared by all flash commands.
func validate(params FlashParams, segments []Segment) error {
	if params.Chip == "" {
		return fmt.Errorf("chip is required")
	}
	if !validModes[params.Mode] {
		return fmt.Errorf("invalid flash mode %q", params.Mode)
	}
	if !validFreqs[params.Freq] {
		return fmt.Errorf("invalid flash frequency %q", params.Freq)
	}
	if params.Size != ModeKeep {
		if _, err := ParseSize(params.Size); err != nil {
			return err
		}
	}
	if len(segments) == 0 {
		return fmt.Errorf("no segments to flash")
	}

	seen := make(map[uint32]string, len(segments))
	for _, s := range segments {
		if s.Path == "" {
			return fmt.Errorf("segment at %s has no file", FormatOffset(s.Offset))
		}
		if prev, ok := seen[s.Offset]; ok {
			return fmt.Errorf("segments %s and %s share offset %s", prev, s.Path, FormatOffset(s.Offset))
		}
		seen[s.Offset] = s.Path
	}
	return nil
}

func appendFlashParams(args []string, params FlashParams) []string {
	return append(args,
		"--flash_mode", params.Mode,
		"--flash_freq", params.Freq,
		"--flash_size", params.Size,
	)
}

func appendSegments(args []string, segments []Segment) []string {
	for _, s := range segments {
		args = append(args, FormatOffset(s.Offset), s.Path)
	}
	return args
}
