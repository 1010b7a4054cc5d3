package partition

import "fmt"

// Type is the partition type column.
type Type uint8

const (
	// TypeApp marks a partition holding a bootable application
	TypeApp Type = 0x00

	// TypeData marks a data partition (nvs, otadata, filesystems, ...)
	TypeData Type = 0x01
)

// String returns the CSV spelling of the type.
func (t Type) String() string {
	switch t {
	case TypeApp:
		return "app"
	case TypeData:
		return "data"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

// Record is a single row of the partition table.
type Record struct {
	// Name is the partition label, unique within a table
	Name string

	// Type is app or data
	Type Type

	// Subtype is kept as written (ota_0, spiffs, nvs, 0x82, ...)
	Subtype string

	// Offset is the absolute flash address of the partition
	Offset uint32

	// Size is the partition length in bytes
	Size uint32

	// Flags is the optional sixth column (e.g. "encrypted")
	Flags string
}

// End returns the first address past the partition.
func (r Record) End() uint64 {
	return uint64(r.Offset) + uint64(r.Size)
}

// overlaps reports whether the two records share at least one byte.
func (r Record) overlaps(o Record) bool {
	return uint64(r.Offset) < o.End() && uint64(o.Offset) < r.End()
}

// Table is a parsed partition table in declaration order.
type Table struct {
	// Records holds the partitions in the order they were declared
	Records []Record

	// AppName is the name of the partition the application image goes to
	AppName string
}

// Find returns the record with the given name.
func (t *Table) Find(name string) (Record, bool) {
	for _, r := range t.Records {
		if r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// App returns the application partition. Parse guarantees it exists.
func (t *Table) App() Record {
	r, _ := t.Find(t.AppName)
	return r
}

// filesystemSubtypes are the data subtypes a filesystem image can target.
var filesystemSubtypes = map[string]bool{
	"spiffs":   true,
	"littlefs": true,
	"fat":      true,
}

// Filesystem returns the filesystem partition. The named partition wins;
// otherwise the first data partition with a filesystem subtype is used.
func (t *Table) Filesystem(name string) (Record, bool) {
	if name != "" {
		if r, ok := t.Find(name); ok {
			return r, true
		}
	}
	for _, r := range t.Records {
		if r.Type == TypeData && filesystemSubtypes[r.Subtype] {
			return r, true
		}
	}
	return Record{}, false
}

// End returns the highest end address of any partition.
func (t *Table) End() uint64 {
	var end uint64
	for _, r := range t.Records {
		if e := r.End(); e > end {
			end = e
		}
	}
	return end
}

// Validate checks that the table fits in a flash chip of flashSize bytes.
func (t *Table) Validate(flashSize uint32) error {
	for _, r := range t.Records {
		if r.End() > uint64(flashSize) {
			return &CapacityError{
				Partition: r.Name,
				End:       r.End(),
				FlashSize: flashSize,
			}
		}
	}
	return nil
}

// WithSize returns a copy of t with the named partition resized. The copy is
// checked for overlaps; t is never modified.
func (t *Table) WithSize(name string, size uint32) (*Table, error) {
	out := &Table{AppName: t.AppName, Records: make([]Record, len(t.Records))}
	copy(out.Records, t.Records)

	found := false
	for i := range out.Records {
		if out.Records[i].Name == name {
			out.Records[i].Size = size
			found = true
			break
		}
	}
	if !found {
		return nil, &MalformedTableError{Reason: fmt.Sprintf("partition %q not found", name)}
	}
	if err := checkOverlaps(out.Records); err != nil {
		return nil, err
	}
	return out, nil
}
