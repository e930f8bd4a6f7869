// Package util provides helpers for opening inputs and outputs.
package util

import (
	"compress/gzip"
	"io"
	"os"
	"strings"
)

// Stdio is the path that selects stdin for inputs and stdout for outputs.
const Stdio = "-"

// OpenFile opens a file, automatically decompressing if it's gzip-compressed.
// The path "-" reads from stdin. Returns the reader, a cleanup function
// and any error. The caller must call cleanup when done reading.
func OpenFile(path string) (io.Reader, func() error, error) {
	if path == Stdio {
		return os.Stdin, func() error { return nil }, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return Decompress(file, path)
}

// Decompress wraps rc in a gzip reader when name ends in .gz. The
// returned cleanup closes both the gzip reader and rc.
func Decompress(rc io.ReadCloser, name string) (io.Reader, func() error, error) {
	if !IsGzipFile(name) {
		return rc, rc.Close, nil
	}

	gz, err := gzip.NewReader(rc)
	if err != nil {
		rc.Close()
		return nil, nil, err
	}
	cleanup := func() error {
		gz.Close()
		return rc.Close()
	}
	return gz, cleanup, nil
}

// CreateFile creates path for writing, gzip-compressing when it ends in
// .gz. The path "-" writes to stdout. The cleanup function flushes and
// closes everything that was opened.
func CreateFile(path string) (io.Writer, func() error, error) {
	if path == Stdio {
		return os.Stdout, func() error { return nil }, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return Compress(file, path)
}

// Compress wraps wc in a gzip writer when name ends in .gz.
func Compress(wc io.WriteCloser, name string) (io.Writer, func() error, error) {
	if !IsGzipFile(name) {
		return wc, wc.Close, nil
	}

	gz := gzip.NewWriter(wc)
	cleanup := func() error {
		if err := gz.Close(); err != nil {
			wc.Close()
			return err
		}
		return wc.Close()
	}
	return gz, cleanup, nil
}

// IsGzipFile returns true if the file path indicates gzip compression.
func IsGzipFile(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// StripCompression removes compression extensions (.gz) from a path.
func StripCompression(path string) string {
	if IsGzipFile(path) {
		return path[:len(path)-3]
	}
	return path
}
