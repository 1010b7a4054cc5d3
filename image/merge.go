package image

import (
	"fmt"
)

// MaxImageSize bounds the merged buffer (the largest ESP32 flash part).
const MaxImageSize = 128 << 20

// AppLimit names the application region and its partition size.
type AppLimit struct {
	Name    string
	MaxSize uint32
}

// Check returns *ApplicationTooLargeError when r is the limited region and
// its data is longer than MaxSize.
func (l AppLimit) Check(r Region) error {
	if l.Name != "" && r.Name == l.Name && len(r.Data) > int(l.MaxSize) {
		return &ApplicationTooLargeError{Name: r.Name, Size: len(r.Data), MaxSize: l.MaxSize}
	}
	return nil
}

// Merger lays regions out in a flat buffer.
type Merger struct {
	// Pad fills bytes no region covers
	Pad byte
}

// NewMerger returns a merger that pads with ErasedByte.
func NewMerger() *Merger {
	return &Merger{Pad: ErasedByte}
}

// Merge places regions in a buffer of length max(offset+len) and returns it.
// The input slice is not modified.
//
// When limit names a region whose data is longer than limit.MaxSize, Merge
// returns *ApplicationTooLargeError. Overlapping regions return
// *OverlapError. A region with no data is ignored.
func (m *Merger) Merge(regions []Region, limit AppLimit) ([]byte, error) {
	rs := make([]Region, 0, len(regions))
	for _, r := range regions {
		if err := limit.Check(r); err != nil {
			return nil, err
		}
		if len(r.Data) > 0 {
			rs = append(rs, r)
		}
	}
	if len(rs) == 0 {
		return nil, fmt.Errorf("merge: no regions")
	}

	sortByOffset(rs)
	var end uint64
	for i, r := range rs {
		if i > 0 && uint64(r.Offset) < rs[i-1].End() {
			return nil, &OverlapError{First: rs[i-1], Second: r}
		}
		if r.End() > end {
			end = r.End()
		}
	}
	if end > MaxImageSize {
		return nil, fmt.Errorf("merge: image would be 0x%X bytes, limit is 0x%X", end, MaxImageSize)
	}

	buf := make([]byte, end)
	for i := range buf {
		buf[i] = m.Pad
	}
	for _, r := range rs {
		copy(buf[r.Offset:], r.Data)
	}
	return buf, nil
}
