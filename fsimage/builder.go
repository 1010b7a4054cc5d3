// Package fsimage stages filesystem inputs and packs them into an image sized
// to the filesystem partition.
//
// Inputs come from a manifest. Local files and directories are copied into a
// staging directory, remote URLs are downloaded into it, and a Tool turns the
// directory into an image:
//
//	entries := fsimage.ParseManifest("data/\nhttps://example.com/ca.pem ca.crt\n")
//	b := fsimage.NewBuilder(&fsimage.MkfsTool{Output: "build/littlefs.bin"})
//	img, err := b.Build(ctx, entries, "build/littlefs_data", 0x160000)
//
// Build returns a nil image when there is nothing to pack.
package fsimage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// DefaultFetchTimeout bounds a single remote download.
const DefaultFetchTimeout = 30 * time.Second

// Logger is the subset of structured logging the builder needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

// Image describes a built filesystem image.
type Image struct {
	// Path is the image file
	Path string

	// Size is the image size in bytes, equal to the partition size
	Size uint32

	// Files is the number of regular files packed
	Files int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets a logger for staging and fetch messages.
func WithLogger(logger Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithHTTPClient sets the client used for remote entries.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Builder) {
		if client != nil {
			b.client = client
		}
	}
}

// WithFetchTimeout bounds each remote download.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(b *Builder) {
		if timeout > 0 {
			b.fetchTimeout = timeout
		}
	}
}

// Builder stages manifest entries and runs the image tool.
type Builder struct {
	tool         Tool
	client       *http.Client
	fetchTimeout time.Duration
	logger       Logger
}

// NewBuilder returns a builder that packs images with tool.
func NewBuilder(tool Tool, opts ...Option) *Builder {
	b := &Builder{
		tool:         tool,
		client:       http.DefaultClient,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build stages entries into stagingDir and packs it into an image of exactly
// size bytes. stagingDir is removed and recreated on every call.
//
// Returns (nil, nil) when the manifest is empty, opts out, or stages nothing.
// Failed downloads are skipped with a warning unless every entry is a failed
// download, which is a *ManifestError. A missing local path is a
// *ManifestError.
func (b *Builder) Build(ctx context.Context, entries Manifest, stagingDir string, size uint32) (*Image, error) {
	if len(entries) == 0 {
		b.info("no filesystem inputs, skipping image")
		return nil, nil
	}
	if entries.OptOut() {
		b.info("filesystem image disabled by manifest")
		return nil, nil
	}

	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}

	failed := 0
	for _, e := range entries {
		switch e.Kind {
		case EntryRemote:
			name, err := b.fetch(ctx, e, stagingDir)
			if err != nil {
				failed++
				b.warn("skipping remote file", "url", e.URL, "error", err.Error())
				continue
			}
			b.info("fetched remote file", "url", e.URL, "name", name)
		case EntryPath:
			if err := stagePath(e.Path, stagingDir); err != nil {
				return nil, &ManifestError{Entry: e.Path, Reason: err.Error()}
			}
		}
	}

	if failed > 0 && failed == len(entries) {
		return nil, &ManifestError{Reason: fmt.Sprintf("all %d remote entries failed", failed)}
	}

	files, err := countFiles(stagingDir)
	if err != nil {
		return nil, fmt.Errorf("scan staging directory: %w", err)
	}
	if files == 0 {
		b.info("staging directory is empty, skipping image")
		return nil, nil
	}

	if b.tool == nil {
		return nil, fmt.Errorf("no filesystem image tool configured")
	}
	out, err := b.tool.Build(ctx, stagingDir, size)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(out)
	if err != nil {
		return nil, fmt.Errorf("stat filesystem image: %w", err)
	}
	if info.Size() != int64(size) {
		return nil, &SizeMismatchError{Path: out, Got: info.Size(), Want: size}
	}

	b.info("filesystem image built", "path", out, "size", size, "files", files)
	return &Image{Path: out, Size: size, Files: files}, nil
}

// fetch downloads e into dir and returns the staged file name.
func (b *Builder) fetch(ctx context.Context, e Entry, dir string) (string, error) {
	u, err := url.Parse(e.URL)
	if err != nil {
		return "", err
	}

	name := e.Rename
	if name == "" {
		name = path.Base(u.Path)
	}
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("cannot derive a file name from %q", e.String())
	}

	ctx, cancel := context.WithTimeout(ctx, b.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return name, nil
}

// stagePath copies a file into dir, or merges a directory's contents into it.
func stagePath(src, dir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, filepath.Join(dir, filepath.Base(src)), info.Mode().Perm())
	}

	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, dst, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func countFiles(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *Builder) info(msg string, kv ...interface{}) {
	if b.logger != nil {
		b.logger.Info(msg, kv...)
	}
}

func (b *Builder) warn(msg string, kv ...interface{}) {
	if b.logger != nil {
		b.logger.Warn(msg, kv...)
	}
}
