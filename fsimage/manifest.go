package fsimage

import (
	"strings"
)

// NoFilesSentinel opts a build out of filesystem image creation.
const NoFilesSentinel = "no_files"

// EntryKind classifies a manifest line.
type EntryKind int

const (
	// EntryPath is a local file or directory
	EntryPath EntryKind = iota

	// EntryRemote is a URL fetched over HTTP
	EntryRemote

	// EntryNoFiles is the opt-out sentinel
	EntryNoFiles
)

// String returns a short name for the kind.
func (k EntryKind) String() string {
	switch k {
	case EntryPath:
		return "path"
	case EntryRemote:
		return "remote"
	case EntryNoFiles:
		return "no_files"
	default:
		return "unknown"
	}
}

// Entry is one manifest line.
type Entry struct {
	Kind EntryKind

	// Path is the local file or directory (EntryPath)
	Path string

	// URL is the remote resource (EntryRemote)
	URL string

	// Rename is the optional staged file name for a remote entry
	Rename string

	// Line is the 1-based line number in the manifest
	Line int
}

// String returns the entry as written.
func (e Entry) String() string {
	switch e.Kind {
	case EntryRemote:
		if e.Rename != "" {
			return e.URL + " " + e.Rename
		}
		return e.URL
	case EntryNoFiles:
		return NoFilesSentinel
	default:
		return e.Path
	}
}

// Manifest is the parsed list of filesystem inputs.
type Manifest []Entry

// ParseManifest parses newline-separated manifest text. Blank lines are
// skipped. A line whose first field contains "://" is a remote entry with an
// optional second field naming the staged file. A line with a no_files field
// is the opt-out sentinel. Anything else is a local path.
func ParseManifest(text string) Manifest {
	var m Manifest
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)

		entry := Entry{Line: i + 1}
		switch {
		case hasField(fields, NoFilesSentinel):
			entry.Kind = EntryNoFiles
		case strings.Contains(fields[0], "://"):
			entry.Kind = EntryRemote
			entry.URL = fields[0]
			if len(fields) > 1 {
				entry.Rename = fields[1]
			}
		default:
			entry.Kind = EntryPath
			entry.Path = line
		}
		m = append(m, entry)
	}
	return m
}

// OptOut reports whether the manifest contains the no_files sentinel.
func (m Manifest) OptOut() bool {
	for _, e := range m {
		if e.Kind == EntryNoFiles {
			return true
		}
	}
	return false
}

func hasField(fields []string, want string) bool {
	for _, f := range fields {
		if f == want {
			return true
		}
	}
	return false
}
