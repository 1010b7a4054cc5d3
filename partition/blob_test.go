package partition

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func compileDefault(t *testing.T) []byte {
	t.Helper()
	table, err := ParseReader(strings.NewReader(defaultTable), ParseOptions{})
	if err != nil {
		t.Fatal(err)
	}
	data, err := Compile(table)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func writeBlob(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "partitions.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompile(t *testing.T) {
	data := compileDefault(t)

	if len(data) != TableSize {
		t.Fatalf("len = 0x%X, want 0x%X", len(data), TableSize)
	}
	if !bytes.Equal(data[0x80:0x82], []byte{0xAA, 0x50}) {
		t.Errorf("entry 5 magic = % X", data[0x80:0x82])
	}
	if data[0x83] != 0x82 {
		t.Errorf("spiffs subtype = 0x%02X, want 0x82", data[0x83])
	}
	if got := binary.LittleEndian.Uint32(data[0x88:0x8C]); got != 0x30000 {
		t.Errorf("spiffs size field = 0x%X, want 0x30000", got)
	}
	if label(data[0x8C:0x9C]) != "spiffs" {
		t.Errorf("label = %q, want spiffs", label(data[0x8C:0x9C]))
	}
	if data[0x43] != 0x10 {
		t.Errorf("app0 subtype = 0x%02X, want 0x10 (ota_0)", data[0x43])
	}
	if !bytes.Equal(data[0xA0:0xA2], []byte{0xEB, 0xEB}) {
		t.Errorf("MD5 marker = % X", data[0xA0:0xA2])
	}
	want := md5.Sum(data[:0xA0])
	if !bytes.Equal(data[0xB0:0xC0], want[:]) {
		t.Errorf("digest = %x, want %x", data[0xB0:0xC0], want)
	}
	for i := 0xC0; i < len(data); i++ {
		if data[i] != 0xFF {
			t.Fatalf("byte 0x%X = 0x%02X, want 0xFF padding", i, data[i])
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		errMsg string
	}{
		{
			name:   "label too long",
			record: Record{Name: "a_very_long_partition_name", Type: TypeApp, Subtype: "factory", Offset: 0x10000, Size: 0x1000},
			errMsg: "longer than 16 bytes",
		},
		{
			name:   "unknown subtype",
			record: Record{Name: "app0", Type: TypeApp, Subtype: "bogus", Offset: 0x10000, Size: 0x1000},
			errMsg: "unknown app subtype",
		},
		{
			name:   "unknown flag",
			record: Record{Name: "app0", Type: TypeApp, Subtype: "factory", Offset: 0x10000, Size: 0x1000, Flags: "sticky"},
			errMsg: "unknown flag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(&Table{Records: []Record{tt.record}, AppName: tt.record.Name})
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestPatchFile(t *testing.T) {
	path := writeBlob(t, compileDefault(t))

	// 16MB flash: spiffs grows to the end of the chip
	const newSize = 0x1000000 - 0x3D0000

	digest, err := PatchFile(path, "spiffs", newSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != TableSize {
		t.Errorf("len = 0x%X, want 0x%X", len(data), TableSize)
	}
	if !bytes.Equal(data[0x89:0x8C], []byte{0x00, 0xC3, 0x00}) {
		t.Errorf("size bytes 0x89..0x8B = % X, want 00 C3 00", data[0x89:0x8C])
	}

	want := md5.Sum(data[:0xA0])
	if !bytes.Equal(data[0xB0:0xC0], want[:]) {
		t.Errorf("trailer = %x, want MD5(blob[0:0xA0]) = %x", data[0xB0:0xC0], want)
	}
	if digest != want {
		t.Errorf("returned digest = %x, want %x", digest, want)
	}

	blob, err := LoadBlob(path)
	if err != nil {
		t.Fatal(err)
	}
	size, err := blob.Size("spiffs")
	if err != nil {
		t.Fatal(err)
	}
	if size != newSize {
		t.Errorf("Size(spiffs) = 0x%X, want 0x%X", size, newSize)
	}
	if err := blob.Verify(); err != nil {
		t.Errorf("Verify() = %v", err)
	}

	// Other entries are untouched
	app, err := blob.Size("app0")
	if err != nil || app != 0x1E0000 {
		t.Errorf("Size(app0) = 0x%X, %v", app, err)
	}
}

func TestPatchFileRejectsUnexpectedShape(t *testing.T) {
	good := compileDefault(t)

	badDigest := bytes.Clone(good)
	badDigest[0xB0] ^= 0xFF

	noMarker := bytes.Clone(good)
	copy(noMarker[0xA0:0xA2], []byte{0xFF, 0xFF})

	tests := []struct {
		name   string
		data   []byte
		target string
		errMsg string
	}{
		{
			name:   "too short",
			data:   good[:0xA0],
			target: "spiffs",
			errMsg: "expected at least 0xB0",
		},
		{
			name:   "no md5 marker",
			data:   noMarker,
			target: "spiffs",
			errMsg: "no MD5 marker",
		},
		{
			name:   "stored digest mismatch",
			data:   badDigest,
			target: "spiffs",
			errMsg: "does not match",
		},
		{
			name:   "unknown partition",
			data:   good,
			target: "littlefs",
			errMsg: `partition "littlefs" not present`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeBlob(t, tt.data)

			_, err := PatchFile(path, tt.target, 0xC30000)

			var corrupt *CorruptPartitionTableError
			if !errors.As(err, &corrupt) {
				t.Fatalf("error = %v, want *CorruptPartitionTableError", err)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}

			after, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(after, tt.data) {
				t.Error("partition table was modified despite error")
			}
		})
	}
}

func TestSetSizeUnaligned(t *testing.T) {
	blob := NewBlob(compileDefault(t))
	before := bytes.Clone(blob.Bytes())

	err := blob.SetSize("spiffs", 0xC30001)
	if err == nil || !strings.Contains(err.Error(), "not 256-byte aligned") {
		t.Fatalf("error = %v, want alignment error", err)
	}
	if !bytes.Equal(blob.Bytes(), before) {
		t.Error("blob changed despite error")
	}
}

// A blob that stops right after the marker header gets its digest appended.
func TestSetSizeAppendsDigest(t *testing.T) {
	blob := NewBlob(compileDefault(t)[:MinimumBlobSize])

	if err := blob.SetSize("spiffs", 0x100000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := blob.Bytes()
	if len(data) != 0xC0 {
		t.Fatalf("len = 0x%X, want 0xC0", len(data))
	}
	want := md5.Sum(data[:0xA0])
	if !bytes.Equal(data[0xB0:], want[:]) {
		t.Errorf("digest = %x, want %x", data[0xB0:], want)
	}
}

func TestBlobEntries(t *testing.T) {
	blob := NewBlob(compileDefault(t))

	records, err := blob.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 5 {
		t.Fatalf("entries = %d, want 5", len(records))
	}
	if records[2].Name != "app0" || records[2].Type != TypeApp || records[2].Offset != 0x10000 {
		t.Errorf("entry 2 = %+v", records[2])
	}
	if records[4].Subtype != "0x82" {
		t.Errorf("entry 4 subtype = %q, want 0x82", records[4].Subtype)
	}
}
