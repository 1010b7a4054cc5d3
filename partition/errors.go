package partition

import "fmt"

// MalformedTableError indicates that the CSV table cannot be used:
// a bad row, a duplicate name, or a missing application partition.
type MalformedTableError struct {
	// Line is the 1-based line number, 0 when the problem is table-wide
	Line int

	// Reason describes what is wrong
	Reason string
}

func (e *MalformedTableError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed partition table: line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed partition table: %s", e.Reason)
}

// OverlapError indicates that two partitions occupy overlapping byte ranges.
type OverlapError struct {
	First  Record
	Second Record
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("partition %q [0x%X, 0x%X) overlaps partition %q [0x%X, 0x%X)",
		e.First.Name, e.First.Offset, e.First.End(),
		e.Second.Name, e.Second.Offset, e.Second.End())
}

// CapacityError indicates that a partition extends past the end of flash.
type CapacityError struct {
	Partition string
	End       uint64
	FlashSize uint32
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("partition %q ends at 0x%X, beyond flash size 0x%X",
		e.Partition, e.End, e.FlashSize)
}

// CorruptPartitionTableError indicates that a compiled partition table does
// not have the expected shape. Patching such a table is refused.
type CorruptPartitionTableError struct {
	// Path is the file the blob was read from (may be empty)
	Path string

	// Reason describes the unexpected shape
	Reason string
}

func (e *CorruptPartitionTableError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corrupt partition table %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("corrupt partition table: %s", e.Reason)
}
