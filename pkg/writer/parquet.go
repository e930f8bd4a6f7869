package writer

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/uppaal2octopus/internal/model"
)

// ParquetWriter writes events to Parquet format using Apache Arrow.
type ParquetWriter struct {
	cfg    Config
	schema *arrow.Schema
	writer *pqarrow.FileWriter

	// One builder per column, in Columns order.
	jobID      *array.StringBuilder
	pageNumber *array.Uint32Builder
	scenario   *array.StringBuilder
	resource   *array.StringBuilder
	eventID    *array.Uint32Builder
	startEnd   *array.StringBuilder
	timestamp  *array.Uint32Builder
	label      *array.StringBuilder

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// eventSchema returns the Arrow schema for events with md attached.
func eventSchema(md map[string]string) *arrow.Schema {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = md[k]
	}
	meta := arrow.NewMetadata(keys, values)

	return arrow.NewSchema([]arrow.Field{
		{Name: Columns[0], Type: arrow.BinaryTypes.String},
		{Name: Columns[1], Type: arrow.PrimitiveTypes.Uint32},
		{Name: Columns[2], Type: arrow.BinaryTypes.String},
		{Name: Columns[3], Type: arrow.BinaryTypes.String},
		{Name: Columns[4], Type: arrow.PrimitiveTypes.Uint32},
		{Name: Columns[5], Type: arrow.BinaryTypes.String},
		{Name: Columns[6], Type: arrow.PrimitiveTypes.Uint32},
		{Name: Columns[7], Type: arrow.BinaryTypes.String},
	}, &meta)
}

// noClose keeps the Parquet file writer from closing the caller's sink.
type noClose struct {
	io.Writer
}

// NewParquetWriter creates a new Parquet writer.
func NewParquetWriter(output io.Writer, cfg Config) (*ParquetWriter, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	allocator := memory.NewGoAllocator()
	schema := eventSchema(cfg.Metadata)

	var codec compress.Compression
	switch cfg.Compression {
	case CompressionSnappy:
		codec = compress.Codecs.Snappy
	case CompressionGzip:
		codec = compress.Codecs.Gzip
	case CompressionZstd:
		codec = compress.Codecs.Zstd
	case CompressionLZ4:
		codec = compress.Codecs.Lz4
	default:
		codec = compress.Codecs.Uncompressed
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithCreatedBy("uppaal2octopus"),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, noClose{output}, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	return &ParquetWriter{
		cfg:        cfg,
		schema:     schema,
		writer:     fw,
		jobID:      array.NewStringBuilder(allocator),
		pageNumber: array.NewUint32Builder(allocator),
		scenario:   array.NewStringBuilder(allocator),
		resource:   array.NewStringBuilder(allocator),
		eventID:    array.NewUint32Builder(allocator),
		startEnd:   array.NewStringBuilder(allocator),
		timestamp:  array.NewUint32Builder(allocator),
		label:      array.NewStringBuilder(allocator),
	}, nil
}

// WriteEvent implements the Writer interface.
func (w *ParquetWriter) WriteEvent(ctx context.Context, ev model.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("parquet writer is closed")
	}

	w.jobID.Append(ev.JobID)
	w.pageNumber.Append(ev.PageNumber)
	w.scenario.Append(ev.Scenario)
	w.resource.Append(ev.Resource)
	w.eventID.Append(ev.EventID)
	w.startEnd.Append(ev.Indicator.String())
	w.timestamp.Append(ev.Timestamp)
	w.label.Append(ev.Label)
	w.rowCount++

	if w.rowCount >= w.cfg.BatchSize {
		return w.flushBatch()
	}
	return nil
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	cols := []arrow.Array{
		w.jobID.NewArray(),
		w.pageNumber.NewArray(),
		w.scenario.NewArray(),
		w.resource.NewArray(),
		w.eventID.NewArray(),
		w.startEnd.NewArray(),
		w.timestamp.NewArray(),
		w.label.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	batch := array.NewRecord(w.schema, cols, int64(w.rowCount))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Flush flushes any buffered data.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close closes the writer and releases resources.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}

	w.jobID.Release()
	w.pageNumber.Release()
	w.scenario.Release()
	w.resource.Release()
	w.eventID.Release()
	w.startEnd.Release()
	w.timestamp.Release()
	w.label.Release()

	w.closed = true
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}
