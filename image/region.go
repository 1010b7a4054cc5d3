// Package image merges binary regions into one flashable image.
//
// Each Region is placed at its flash offset in a buffer that starts at
// address 0 and is pre-filled with ErasedByte. Regions may not overlap, and
// the application region is checked against its partition size before
// anything is written.
//
// Example:
//
//	regions, err := image.ParseSections("0x1000 build/bootloader.bin 0x8000 build/partitions.bin")
//	app, err := image.ReadRegion("app0", 0x10000, "build/firmware.bin")
//	m := image.NewMerger()
//	data, err := m.Merge(append(regions, app), image.AppLimit{Name: "app0", MaxSize: 0x1E0000})
//	err = image.WriteFile("build/firmware.factory.bin", data)
package image

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErasedByte is the value of erased NOR flash.
const ErasedByte = 0xFF

// Region is a named block of bytes placed at a flash offset.
type Region struct {
	Name   string
	Offset uint32
	Data   []byte

	// Path is the file Data was read from, empty for in-memory regions
	Path string
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return uint64(r.Offset) + uint64(len(r.Data))
}

// ReadRegion loads a file as a region.
func ReadRegion(name string, offset uint32, path string) (Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Region{}, fmt.Errorf("read %s image: %w", name, err)
	}
	return Region{Name: name, Offset: offset, Data: data, Path: path}, nil
}

// ParseSections parses whitespace-separated "offset path" pairs as used by
// FLASH_EXTRA_IMAGES, for example "0x1000 bootloader.bin 0x8000 partitions.bin",
// and reads each file. Regions are named after the file's base name.
func ParseSections(descr string) ([]Region, error) {
	fields := strings.Fields(descr)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("sections: expected offset/path pairs, got %d fields", len(fields))
	}

	regions := make([]Region, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		addr, path := fields[i], fields[i+1]
		offset, err := strconv.ParseUint(addr, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("sections: bad offset %q: %w", addr, err)
		}
		r, err := ReadRegion(filepath.Base(path), uint32(offset), path)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// sortByOffset sorts regions by Offset, keeping the given order for ties.
func sortByOffset(rs []Region) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Offset < rs[j].Offset
	})
}
