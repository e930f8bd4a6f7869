package writer

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/uppaal2octopus/internal/model"
)

const xlsxSheet = "Sheet1"

// XLSXWriter writes events to a single worksheet, one row per event
// below a header row. The workbook is written to the output on Close.
type XLSXWriter struct {
	out    io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
	closed bool
}

// NewXLSXWriter creates a new XLSX writer.
func NewXLSXWriter(out io.Writer, cfg Config) (*XLSXWriter, error) {
	f := excelize.NewFile()

	if len(cfg.Metadata) > 0 {
		props := &excelize.DocProperties{
			Creator:     "uppaal2octopus",
			Identifier:  cfg.Metadata["run_id"],
			Description: cfg.Metadata["trace"],
			Subject:     cfg.Metadata["model"],
		}
		if err := f.SetDocProps(props); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set document properties: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create stream writer: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	return &XLSXWriter{out: out, file: f, stream: sw, row: 1}, nil
}

// WriteEvent implements the Writer interface.
func (x *XLSXWriter) WriteEvent(ctx context.Context, ev model.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if x.closed {
		return fmt.Errorf("xlsx writer is closed")
	}

	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	return x.stream.SetRow(cell, []interface{}{
		ev.JobID,
		ev.PageNumber,
		ev.Scenario,
		ev.Resource,
		ev.EventID,
		ev.Indicator.String(),
		ev.Timestamp,
		ev.Label,
	})
}

// Flush is a no-op: a workbook can only be written as a whole.
func (x *XLSXWriter) Flush() error {
	return nil
}

// Close finishes the worksheet and writes the workbook.
func (x *XLSXWriter) Close() error {
	if x.closed {
		return nil
	}
	x.closed = true
	defer x.file.Close()

	if err := x.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush worksheet: %w", err)
	}
	if _, err := x.file.WriteTo(x.out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Rows returns the number of event rows written.
func (x *XLSXWriter) Rows() int {
	return x.row - 1
}
