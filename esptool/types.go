package esptool

import "fmt"

// Segment is one (offset, file) pair of a flash command.
type Segment struct {
	// Offset is the absolute flash address
	Offset uint32

	// Path is the binary written at Offset
	Path string
}

// String renders the segment the way esptool expects it on the command line.
func (s Segment) String() string {
	return FormatOffset(s.Offset) + " " + s.Path
}

// FlashParams are the chip-level flags shared by merge_bin and write_flash.
type FlashParams struct {
	// Chip is the target (esp32, esp32s3, esp32c3, ...)
	Chip string

	// Mode is the SPI flash mode (qio, dio, ...)
	Mode string

	// Freq is the SPI flash frequency (40m, 80m, ...)
	Freq string

	// Size is the flash size token (4MB, 16MB, ...)
	Size string
}

// Connection describes how esptool reaches the device.
type Connection struct {
	// Port is the serial port; empty lets esptool auto-detect
	Port string

	// Baud is the serial speed; zero means DefaultBaud
	Baud int

	// Before is the reset mode before the operation
	Before string

	// After is the reset mode after the operation
	After string
}

// Invocation locates the esptool executable. When Python is set, Tool is a
// script run through that interpreter.
type Invocation struct {
	Python string
	Tool   string
}

// Command returns the program name and full argument list for args.
func (inv Invocation) Command(args []string) (string, []string) {
	tool := inv.Tool
	if tool == "" {
		tool = DefaultUploader
	}
	if inv.Python == "" {
		return tool, args
	}
	return inv.Python, append([]string{tool}, args...)
}

// FormatOffset renders an offset as lowercase 0x hex.
func FormatOffset(offset uint32) string {
	return fmt.Sprintf("0x%x", offset)
}
