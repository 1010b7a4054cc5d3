// Package esptool builds and interprets command lines for the Espressif
// esptool flashing utility.
//
// The composer never talks to a chip directly. Every hardware or flashing
// operation is an esptool invocation, so this package is the protocol layer:
// it renders argument lists and parses what the tool prints back.
//
// # Command Builders
//
// Use the Build* functions to create argument lists:
//
//	args := esptool.BuildFlashIDCmd(conn)
//	args, err := esptool.BuildMergeBinCmd(params, "firmware.factory.bin", segments)
//	args, err := esptool.BuildWriteFlashCmd(params, conn, segments)
//
// Segments are (offset, file) pairs and are emitted in the order given:
//
//	--chip esp32 write_flash -z --flash_mode dio --flash_freq 40m --flash_size 4MB
//	    0x1000 bootloader.bin 0x8000 partitions.bin 0x10000 firmware.bin
//
// # Response Parsers
//
// ParseFlashIDResponse extracts the flash capacity from flash_id output:
//
//	Detected flash size: 16MB
//
// ParseSize and FormatSize convert between size tokens and byte counts.
//
// # Running Tools
//
// ExecRunner runs a command with a context deadline and reports failures as
// *ToolError carrying the exit status and captured stderr.
package esptool
