package fsimage

import "fmt"

// ManifestError indicates that the manifest cannot produce a usable image:
// a local path is missing or every remote entry failed.
type ManifestError struct {
	// Entry is the offending manifest entry, empty for manifest-wide failures
	Entry string

	// Reason describes the failure
	Reason string
}

func (e *ManifestError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("filesystem manifest entry %q: %s", e.Entry, e.Reason)
	}
	return fmt.Sprintf("filesystem manifest: %s", e.Reason)
}

// SizeMismatchError indicates that the image tool produced a file whose size
// differs from the partition size.
type SizeMismatchError struct {
	Path string
	Got  int64
	Want uint32
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("filesystem image %s is %d bytes, partition is %d (0x%X) bytes",
		e.Path, e.Got, e.Want, e.Want)
}
