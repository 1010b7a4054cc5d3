package esptool

// Subcommands used by the composer.
const (
	// CmdFlashID reads the flash chip id and reports its size
	CmdFlashID = "flash_id"

	// CmdMergeBin combines binaries into one image at their offsets
	CmdMergeBin = "merge_bin"

	// CmdWriteFlash writes (offset, file) pairs to the chip
	CmdWriteFlash = "write_flash"
)

// DefaultUploader is the esptool script name used when none is configured.
const DefaultUploader = "esptool.py"

// DetectedFlashSizePrefix starts the flash_id line carrying the capacity.
const DetectedFlashSizePrefix = "Detected flash size: "

// Flash modes accepted by --flash_mode.
const (
	ModeQIO  = "qio"
	ModeQOUT = "qout"
	ModeDIO  = "dio"
	ModeDOUT = "dout"

	// ModeKeep leaves the mode in the bootloader header unchanged
	ModeKeep = "keep"
)

// Flash frequencies accepted by --flash_freq.
const (
	Freq80M = "80m"
	Freq40M = "40m"
	Freq26M = "26m"
	Freq20M = "20m"
)

// Reset modes for --before and --after.
const (
	ResetDefault = "default_reset"
	ResetNone    = "no_reset"
	ResetHard    = "hard_reset"
	ResetSoft    = "soft_reset"
)

// DefaultBaud is the serial speed used when none is configured.
const DefaultBaud = 115200

// Size units for flash size tokens.
const (
	KB = 1024
	MB = 1024 * KB
)

var validModes = map[string]bool{
	ModeQIO:  true,
	ModeQOUT: true,
	ModeDIO:  true,
	ModeDOUT: true,
	ModeKeep: true,
}

var validFreqs = map[string]bool{
	Freq80M:  true,
	Freq40M:  true,
	Freq26M:  true,
	Freq20M:  true,
	ModeKeep: true,
}

// ValidFlashMode reports whether mode is accepted by --flash_mode.
func ValidFlashMode(mode string) bool {
	return validModes[mode]
}

// ValidFlashFreq reports whether freq is accepted by --flash_freq.
func ValidFlashFreq(freq string) bool {
	return validFreqs[freq]
}
