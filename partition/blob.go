package partition

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Constants for the compiled (binary) partition table.
const (
	// EntrySize is the size of one binary partition entry
	EntrySize = 32

	// LabelSize is the size of the NUL-padded label field
	LabelSize = 16

	// TableSize is the size of a compiled partitions.bin
	TableSize = 0xC00

	// MinimumBlobSize is the shortest blob that can be patched: five entries
	// plus the MD5 marker header
	MinimumBlobSize = 0xB0

	// DigestFieldOffset is where the digest sits inside the MD5 marker entry
	DigestFieldOffset = 16

	// sizeFieldOffset is the first byte of the 3-byte size field patched
	// inside an entry (bits 8..31 of the little-endian size)
	sizeFieldOffset = 9

	// MaxEntries is the number of partitions that fit before the MD5 marker
	MaxEntries = TableSize/EntrySize - 1
)

var (
	entryMagic = []byte{0xAA, 0x50}
	md5Magic   = []byte{0xEB, 0xEB}
)

// Blob is a compiled partition table loaded into memory.
type Blob struct {
	// Path is the file the blob was loaded from
	Path string

	data []byte
}

// NewBlob wraps a copy of data.
func NewBlob(data []byte) *Blob {
	b := &Blob{data: make([]byte, len(data))}
	copy(b.data, data)
	return b
}

// LoadBlob reads a compiled partition table from disk.
func LoadBlob(path string) (*Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read partition table: %w", err)
	}
	b := NewBlob(data)
	b.Path = path
	return b, nil
}

// Bytes returns the current blob contents.
func (b *Blob) Bytes() []byte {
	return b.data
}

// corrupt builds a CorruptPartitionTableError for this blob.
func (b *Blob) corrupt(format string, args ...any) error {
	return &CorruptPartitionTableError{Path: b.Path, Reason: fmt.Sprintf(format, args...)}
}

// layout walks the entries and returns the offset of every partition entry
// and the offset of the MD5 marker entry.
func (b *Blob) layout() (entries []int, marker int, err error) {
	if len(b.data) < MinimumBlobSize {
		return nil, 0, b.corrupt("blob is 0x%X bytes, expected at least 0x%X", len(b.data), MinimumBlobSize)
	}

	for off := 0; off+DigestFieldOffset <= len(b.data); off += EntrySize {
		head := b.data[off : off+2]
		switch {
		case bytes.Equal(head, entryMagic):
			if off+EntrySize > len(b.data) {
				return nil, 0, b.corrupt("truncated entry at 0x%X", off)
			}
			entries = append(entries, off)
		case bytes.Equal(head, md5Magic):
			return entries, off, nil
		default:
			return nil, 0, b.corrupt("no MD5 marker: unexpected bytes %02X%02X at 0x%X", head[0], head[1], off)
		}
	}

	return nil, 0, b.corrupt("no MD5 marker found")
}

// find returns the entry offset of the partition labelled name.
func (b *Blob) find(name string) (int, error) {
	entries, _, err := b.layout()
	if err != nil {
		return 0, err
	}
	for _, off := range entries {
		if label(b.data[off+12:off+12+LabelSize]) == name {
			return off, nil
		}
	}
	return 0, b.corrupt("partition %q not present", name)
}

// label decodes a NUL-padded label field.
func label(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// Digest computes the MD5 digest over every byte before the MD5 marker.
func (b *Blob) Digest() ([md5.Size]byte, error) {
	_, marker, err := b.layout()
	if err != nil {
		return [md5.Size]byte{}, err
	}
	return md5.Sum(b.data[:marker]), nil
}

// Verify checks the stored digest against the computed one. A blob that ends
// right after the marker header has no stored digest and verifies trivially.
func (b *Blob) Verify() error {
	_, marker, err := b.layout()
	if err != nil {
		return err
	}
	start := marker + DigestFieldOffset
	if start+md5.Size > len(b.data) {
		return nil
	}
	want := md5.Sum(b.data[:marker])
	if !bytes.Equal(b.data[start:start+md5.Size], want[:]) {
		return b.corrupt("stored MD5 %x does not match computed %x", b.data[start:start+md5.Size], want)
	}
	return nil
}

// Size returns the size field of the named partition.
func (b *Blob) Size(name string) (uint32, error) {
	off, err := b.find(name)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[off+8 : off+12]), nil
}

// Entries decodes the partition entries of the blob.
func (b *Blob) Entries() ([]Record, error) {
	offs, _, err := b.layout()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(offs))
	for _, off := range offs {
		e := b.data[off : off+EntrySize]
		records = append(records, Record{
			Name:    label(e[12 : 12+LabelSize]),
			Type:    Type(e[2]),
			Subtype: fmt.Sprintf("0x%02X", e[3]),
			Offset:  binary.LittleEndian.Uint32(e[4:8]),
			Size:    binary.LittleEndian.Uint32(e[8:12]),
		})
	}
	return records, nil
}

// SetSize overwrites the size field of the named partition and recomputes
// the MD5 digest. The blob is left unchanged on error.
//
// Only the three high bytes of the size are written (0x89..0x8B for the
// fifth entry), so size must be a multiple of 256.
func (b *Blob) SetSize(name string, size uint32) error {
	if size&0xFF != 0 {
		return fmt.Errorf("partition size 0x%X is not 256-byte aligned", size)
	}
	if err := b.Verify(); err != nil {
		return err
	}
	off, err := b.find(name)
	if err != nil {
		return err
	}
	_, marker, err := b.layout()
	if err != nil {
		return err
	}

	// 0xC50000 -> [00 C5 00 00]; bytes 2, 1, 0 fill the field low to high
	var be [4]byte
	binary.BigEndian.PutUint32(be[:], size)
	b.data[off+sizeFieldOffset] = be[2]
	b.data[off+sizeFieldOffset+1] = be[1]
	b.data[off+sizeFieldOffset+2] = be[0]

	digest := md5.Sum(b.data[:marker])
	start := marker + DigestFieldOffset
	if need := start + md5.Size; need > len(b.data) {
		b.data = append(b.data, make([]byte, need-len(b.data))...)
	}
	copy(b.data[start:], digest[:])

	return nil
}

// WriteFile writes the blob to path.
func (b *Blob) WriteFile(path string) error {
	if err := os.WriteFile(path, b.data, 0o644); err != nil {
		return fmt.Errorf("failed to write partition table: %w", err)
	}
	return nil
}

// PatchFile loads the compiled table at path, sets the size of the named
// partition and writes it back in place. Returns the new digest.
// Nothing is written when the table has an unexpected shape.
func PatchFile(path, name string, size uint32) ([md5.Size]byte, error) {
	b, err := LoadBlob(path)
	if err != nil {
		return [md5.Size]byte{}, err
	}
	if err := b.SetSize(name, size); err != nil {
		return [md5.Size]byte{}, err
	}
	if err := b.WriteFile(path); err != nil {
		return [md5.Size]byte{}, err
	}
	return b.Digest()
}

// subtypeCodes maps CSV subtype keywords to their binary values per type.
var subtypeCodes = map[Type]map[string]byte{
	TypeApp: {
		"factory": 0x00,
		"test":    0x20,
	},
	TypeData: {
		"ota":       0x00,
		"phy":       0x01,
		"nvs":       0x02,
		"coredump":  0x03,
		"nvs_keys":  0x04,
		"efuse":     0x05,
		"undefined": 0x06,
		"esphttpd":  0x80,
		"fat":       0x81,
		"spiffs":    0x82,
		"littlefs":  0x83,
	},
}

// subtypeCode resolves a subtype keyword, ota_N, or numeric literal.
func subtypeCode(t Type, subtype string) (byte, error) {
	s := strings.ToLower(subtype)
	if code, ok := subtypeCodes[t][s]; ok {
		return code, nil
	}
	if t == TypeApp && strings.HasPrefix(s, "ota_") {
		n, err := strconv.ParseUint(s[len("ota_"):], 10, 8)
		if err == nil && n < 16 {
			return 0x10 + byte(n), nil
		}
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown %s subtype %q", t, subtype)
	}
	return byte(v), nil
}

// flagBits maps the flags column to entry flag bits.
func flagBits(flags string) (uint32, error) {
	var bits uint32
	for _, f := range strings.Fields(strings.ReplaceAll(flags, ":", " ")) {
		switch f {
		case "encrypted":
			bits |= 1 << 0
		case "readonly":
			bits |= 1 << 1
		default:
			return 0, fmt.Errorf("unknown flag %q", f)
		}
	}
	return bits, nil
}

// Compile encodes a parsed table into a TableSize-byte partitions.bin:
// one entry per record, the MD5 marker and digest, then 0xFF padding.
func Compile(t *Table) ([]byte, error) {
	if len(t.Records) > MaxEntries {
		return nil, fmt.Errorf("too many partitions: %d, maximum is %d", len(t.Records), MaxEntries)
	}

	out := bytes.Repeat([]byte{0xFF}, TableSize)
	off := 0
	for _, r := range t.Records {
		if len(r.Name) > LabelSize {
			return nil, fmt.Errorf("partition name %q longer than %d bytes", r.Name, LabelSize)
		}
		sub, err := subtypeCode(r.Type, r.Subtype)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", r.Name, err)
		}
		flags, err := flagBits(r.Flags)
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", r.Name, err)
		}

		e := out[off : off+EntrySize]
		copy(e[0:2], entryMagic)
		e[2] = byte(r.Type)
		e[3] = sub
		binary.LittleEndian.PutUint32(e[4:8], r.Offset)
		binary.LittleEndian.PutUint32(e[8:12], r.Size)
		lbl := e[12 : 12+LabelSize]
		for i := range lbl {
			lbl[i] = 0
		}
		copy(lbl, r.Name)
		binary.LittleEndian.PutUint32(e[28:32], flags)
		off += EntrySize
	}

	copy(out[off:off+2], md5Magic)
	digest := md5.Sum(out[:off])
	copy(out[off+DigestFieldOffset:], digest[:])

	return out, nil
}
