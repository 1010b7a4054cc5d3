package image

import "fmt"

// ApplicationTooLargeError indicates that the application does not fit its
// partition. Nothing is written when this is returned.
type ApplicationTooLargeError struct {
	Name    string
	Size    int
	MaxSize uint32
}

func (e *ApplicationTooLargeError) Error() string {
	return fmt.Sprintf("application %s is %d (0x%X) bytes, exceeds maximum %d (0x%X) bytes by %d",
		e.Name, e.Size, e.Size, e.MaxSize, e.MaxSize, e.Size-int(e.MaxSize))
}

// OverlapError indicates that two regions cover the same bytes.
type OverlapError struct {
	First  Region
	Second Region
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("region %s [0x%X, 0x%X) overlaps region %s [0x%X, 0x%X)",
		e.First.Name, e.First.Offset, e.First.End(),
		e.Second.Name, e.Second.Offset, e.Second.End())
}
