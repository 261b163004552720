// Package transfer opens export files for the hypercube and the elephant
// memory. Paths ending in ".zst" are zstd compressed transparently.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedExt marks export files that are zstd compressed.
const CompressedExt = ".zst"

// Compressed reports whether path names a compressed export.
func Compressed(path string) bool {
	return strings.HasSuffix(path, CompressedExt)
}

type writeCloser struct {
	enc  *zstd.Encoder
	file *os.File
}

func (w *writeCloser) Write(p []byte) (int, error) { return w.enc.Write(p) }

func (w *writeCloser) Close() error {
	return errors.Join(w.enc.Close(), w.file.Close())
}

type readCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (r *readCloser) Read(p []byte) (int, error) { return r.dec.Read(p) }

func (r *readCloser) Close() error {
	r.dec.Close()
	return r.file.Close()
}

// Create creates (or truncates) path for writing, making parent directories
// as needed.
func Create(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export %s: %w", path, err)
	}
	if !Compressed(path) {
		return f, nil
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create compressor: %w", err)
	}
	return &writeCloser{enc: enc, file: f}, nil
}

// Open opens path for reading.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", path, err)
	}
	if !Compressed(path) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create decompressor: %w", err)
	}
	return &readCloser{dec: dec, file: f}, nil
}
