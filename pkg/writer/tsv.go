package writer

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"github.com/logflow/uppaal2octopus/internal/model"
)

// TSVWriter writes the Octopus event record: eight tab-separated fields
// per line, the label enclosed in double quotes.
type TSVWriter struct {
	w   *bufio.Writer
	buf []byte
}

// NewTSVWriter creates a TSV writer on top of out.
func NewTSVWriter(out io.Writer) *TSVWriter {
	return &TSVWriter{
		w:   bufio.NewWriterSize(out, 64*1024),
		buf: make([]byte, 0, 256),
	}
}

// WriteEvent implements the Writer interface.
func (t *TSVWriter) WriteEvent(ctx context.Context, ev model.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.buf = AppendRecord(t.buf[:0], ev)
	t.buf = append(t.buf, '\n')
	_, err := t.w.Write(t.buf)
	return err
}

// Flush implements the Writer interface.
func (t *TSVWriter) Flush() error {
	return t.w.Flush()
}

// Close implements the Writer interface.
func (t *TSVWriter) Close() error {
	return t.w.Flush()
}

// AppendRecord appends the tab-separated record of ev to dst, without a
// line terminator.
func AppendRecord(dst []byte, ev model.Event) []byte {
	dst = append(dst, ev.JobID...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, uint64(ev.PageNumber), 10)
	dst = append(dst, '\t')
	dst = append(dst, ev.Scenario...)
	dst = append(dst, '\t')
	dst = append(dst, ev.Resource...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, uint64(ev.EventID), 10)
	dst = append(dst, '\t')
	dst = append(dst, ev.Indicator.String()...)
	dst = append(dst, '\t')
	dst = strconv.AppendUint(dst, uint64(ev.Timestamp), 10)
	dst = append(dst, '\t', '"')
	dst = append(dst, ev.Label...)
	dst = append(dst, '"')
	return dst
}
