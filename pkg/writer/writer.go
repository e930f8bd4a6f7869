// Package writer serializes Octopus events. The tab-separated record is
// what the visualizer reads; Parquet and XLSX outputs carry the same eight
// columns for analysis tooling.
package writer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/logflow/uppaal2octopus/internal/model"
)

// Writer defines the interface for writing events to an output format.
type Writer interface {
	// WriteEvent writes a single event.
	WriteEvent(ctx context.Context, ev model.Event) error

	// Flush flushes any buffered data.
	Flush() error

	// Close flushes and releases resources. It does not close the
	// underlying io.Writer.
	Close() error
}

// Columns are the output column names, in record order.
var Columns = []string{
	"jobId",
	"pageNumber",
	"scenario",
	"resource",
	"eventId",
	"startEnd",
	"timeStamp",
	"label",
}

// Format represents a supported output format.
type Format uint8

const (
	FormatTSV Format = iota
	FormatParquet
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatParquet:
		return "parquet"
	case FormatXLSX:
		return "xlsx"
	default:
		return "tsv"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "tsv", "octopus":
		return FormatTSV, nil
	case "parquet", "pq":
		return FormatParquet, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return FormatTSV, fmt.Errorf("unknown output format %q", s)
	}
}

// FormatFromPath guesses the output format from a file extension,
// ignoring a trailing .gz.
func FormatFromPath(path string) Format {
	path = strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch filepath.Ext(path) {
	case ".parquet", ".pq":
		return FormatParquet
	case ".xlsx":
		return FormatXLSX
	default:
		return FormatTSV
	}
}

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of events per Parquet record batch.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType

	// Metadata is stored in the Parquet schema and the XLSX document
	// properties, e.g. the run id and input paths.
	Metadata map[string]string
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
	CompressionLZ4
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
	}
}

// New creates a writer for format on top of out.
func New(format Format, out io.Writer, cfg Config) (Writer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	switch format {
	case FormatTSV:
		return NewTSVWriter(out), nil
	case FormatParquet:
		return NewParquetWriter(out, cfg)
	case FormatXLSX:
		return NewXLSXWriter(out, cfg)
	default:
		return nil, fmt.Errorf("unsupported output format %v", format)
	}
}
