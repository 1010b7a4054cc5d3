package partition

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Constants for CSV partition table parsing.
const (
	// MinimumFields is the number of columns every partition row must have
	MinimumFields = 5

	// DefaultAppPartition is the partition the application image is placed in
	DefaultAppPartition = "app0"

	// DefaultRecordCapacity is the default initial capacity for the records slice
	DefaultRecordCapacity = 8
)

// ParseOptions tunes table parsing.
type ParseOptions struct {
	// AppPartition names the required application partition.
	// Defaults to DefaultAppPartition.
	AppPartition string
}

// Parse parses a CSV partition table from the given file path.
//
// Example:
//
//	table, err := partition.Parse("partitions.csv", partition.ParseOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
func Parse(path string, opts ParseOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open partition table: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f, opts)
}

// ParseReader parses a CSV partition table from any io.Reader.
// The returned table has unique names, no overlapping partitions and
// contains the application partition.
func ParseReader(r io.Reader, opts ParseOptions) (*Table, error) {
	appName := opts.AppPartition
	if appName == "" {
		appName = DefaultAppPartition
	}

	table := &Table{
		Records: make([]Record, 0, DefaultRecordCapacity),
		AppName: appName,
	}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := parseRow(line)
		if err != nil {
			return nil, &MalformedTableError{Line: lineNum, Reason: err.Error()}
		}

		if prev, ok := seen[rec.Name]; ok {
			return nil, &MalformedTableError{
				Line:   lineNum,
				Reason: fmt.Sprintf("duplicate partition name %q (first declared on line %d)", rec.Name, prev),
			}
		}
		seen[rec.Name] = lineNum

		table.Records = append(table.Records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read partition table: %w", err)
	}

	if _, ok := table.Find(appName); !ok {
		return nil, &MalformedTableError{
			Reason: fmt.Sprintf("required application partition %q not found", appName),
		}
	}

	if err := checkOverlaps(table.Records); err != nil {
		return nil, err
	}

	return table, nil
}

// parseRow parses one non-comment CSV row.
//
// Row format:
//
//	name, type, subtype, offset, size[, flags]
func parseRow(line string) (Record, error) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	// A trailing comma produces an empty sixth field; drop it
	if len(fields) > MinimumFields && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}

	if len(fields) < MinimumFields {
		return Record{}, fmt.Errorf("row has %d fields, expected at least %d (name, type, subtype, offset, size)",
			len(fields), MinimumFields)
	}

	if fields[0] == "" {
		return Record{}, fmt.Errorf("empty partition name")
	}

	typ, err := parseType(fields[1])
	if err != nil {
		return Record{}, err
	}

	if fields[2] == "" {
		return Record{}, fmt.Errorf("partition %q: empty subtype", fields[0])
	}

	offset, err := parseNumber(fields[3])
	if err != nil {
		return Record{}, fmt.Errorf("partition %q: invalid offset: %w", fields[0], err)
	}

	size, err := parseNumber(fields[4])
	if err != nil {
		return Record{}, fmt.Errorf("partition %q: invalid size: %w", fields[0], err)
	}
	if size == 0 {
		return Record{}, fmt.Errorf("partition %q: size must be non-zero", fields[0])
	}

	rec := Record{
		Name:    fields[0],
		Type:    typ,
		Subtype: fields[2],
		Offset:  offset,
		Size:    size,
	}
	if len(fields) > MinimumFields {
		rec.Flags = fields[5]
	}

	return rec, nil
}

// parseType parses the type column: a keyword or its numeric value.
func parseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "app", "0", "0x0", "0x00":
		return TypeApp, nil
	case "data", "1", "0x1", "0x01":
		return TypeData, nil
	default:
		return 0, fmt.Errorf("invalid partition type %q (must be app or data)", s)
	}
}

// parseNumber parses a 32-bit offset or size. Accepts 0x hex, decimal,
// and the K/M suffixes used by ESP-IDF tables (e.g. "24K", "1M").
func parseNumber(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	multiplier := uint64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		multiplier = 1024
		s = s[:len(s)-1]
	case 'M', 'm':
		multiplier = 1024 * 1024
		s = s[:len(s)-1]
	}

	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}

	v *= multiplier
	if v > 0xFFFFFFFF {
		return 0, fmt.Errorf("value 0x%X exceeds 32 bits", v)
	}

	return uint32(v), nil
}

// checkOverlaps returns an OverlapError for the first pair of records
// (in declaration order) that share a byte.
func checkOverlaps(records []Record) error {
	for i := range records {
		for j := i + 1; j < len(records); j++ {
			if records[i].overlaps(records[j]) {
				return &OverlapError{First: records[i], Second: records[j]}
			}
		}
	}
	return nil
}
