// Package partition parses ESP32 partition tables and patches their compiled
// binary form.
//
// # CSV Format
//
// The textual table is one partition per row:
//
//	# Name,   Type, SubType, Offset,   Size,     Flags
//	nvs,      data, nvs,     0x9000,   0x5000,
//	otadata,  data, ota,     0xe000,   0x2000,
//	app0,     app,  ota_0,   0x10000,  0x1E0000,
//	app1,     app,  ota_1,   0x1F0000, 0x1E0000,
//	spiffs,   data, spiffs,  0x3D0000, 0x30000,
//
// Blank lines and lines starting with '#' are ignored. Offsets and sizes are
// 0x-prefixed hex; decimal values and K/M suffixes are accepted as well.
//
// # Binary Format
//
// The compiled table (partitions.bin, flashed at 0x8000) holds one 32-byte
// entry per partition:
//
//	[Magic AA 50][Type(1)][SubType(1)][Offset(4 LE)][Size(4 LE)][Label(16)][Flags(4 LE)]
//
// followed by an MD5 marker entry (EB EB FF..FF) whose last 16 bytes are the
// MD5 digest of every byte before the marker. With five partitions the marker
// sits at 0xA0, the digest at 0xB0, and the size field of the fifth entry at
// 0x88..0x8B.
//
// # Usage
//
//	table, err := partition.Parse("partitions.csv", partition.ParseOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	app := table.App()
//	fmt.Printf("app0 at 0x%X, %d bytes\n", app.Offset, app.Size)
//
// Grow the filesystem partition of a compiled table in place:
//
//	err := partition.PatchFile("partitions.bin", "spiffs", 0xC30000)
//
// # Error Handling
//
// Parse and PatchFile return typed errors:
//   - MalformedTableError: bad row, duplicate name, missing app partition
//   - OverlapError: two partitions share bytes
//   - CapacityError: the table does not fit the flash
//   - CorruptPartitionTableError: the compiled table has an unexpected shape
package partition
