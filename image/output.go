package image

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"
)

// WriteFile writes data to path through a temporary file in the same
// directory and renames it into place.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary image: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temporary image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temporary image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temporary image: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temporary image: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename image into place: %w", err)
	}

	success = true
	return nil
}

// WriteGzip writes a gzip copy of data to path at best compression.
func WriteGzip(path string, data []byte) error {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return err
	}
	zw.Name = filepath.Base(path[:len(path)-len(filepath.Ext(path))])
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("compress image: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress image: %w", err)
	}
	return WriteFile(path, buf.Bytes())
}

// Digest returns the hex-encoded BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
