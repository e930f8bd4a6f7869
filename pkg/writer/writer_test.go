package writer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/logflow/uppaal2octopus/internal/model"
)

func sampleEvents() []model.Event {
	base := model.Event{
		JobID:      "30:Train.Cross",
		PageNumber: 30,
		Scenario:   model.Scenario,
		Resource:   "Train",
		EventID:    0,
		Indicator:  model.Start,
		Timestamp:  3,
		Label:      "30:Train.Cross",
	}
	end := base
	end.Indicator = model.End
	end.Timestamp = 12
	return []model.Event{base, end}
}

func writeAll(t *testing.T, w Writer, events []model.Event) {
	t.Helper()
	ctx := context.Background()
	for _, ev := range events {
		require.NoError(t, w.WriteEvent(ctx, ev))
	}
	require.NoError(t, w.Close())
}

func TestAppendRecord(t *testing.T) {
	got := string(AppendRecord(nil, sampleEvents()[0]))
	assert.Equal(t, "30:Train.Cross\t30\tUPPAALtrace\tTrain\t0\tstart\t3\t\"30:Train.Cross\"", got)
}

func TestTSVWriter(t *testing.T) {
	var buf bytes.Buffer
	writeAll(t, NewTSVWriter(&buf), sampleEvents())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, len(Columns))
	assert.Equal(t, "end", fields[5])
	assert.Equal(t, "12", fields[6])
	assert.Equal(t, `"30:Train.Cross"`, fields[7])
}

func TestTSVWriter_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewTSVWriter(&bytes.Buffer{}).WriteEvent(ctx, sampleEvents()[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParquetWriter(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.Metadata = map[string]string{"run_id": "r1", "trace": "a.xtr"}

	w, err := NewParquetWriter(&buf, cfg)
	require.NoError(t, err)
	writeAll(t, w, sampleEvents())
	assert.Equal(t, int64(2), w.RowsWritten())
	require.NoError(t, w.Close())

	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		nil, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer table.Release()

	assert.Equal(t, int64(2), table.NumRows())
	require.Equal(t, int64(len(Columns)), table.NumCols())
	for i, name := range Columns {
		assert.Equal(t, name, table.Schema().Field(i).Name)
	}

	rdr, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer rdr.Close()
	runID := rdr.MetaData().KeyValueMetadata().FindValue("run_id")
	require.NotNil(t, runID)
	assert.Equal(t, "r1", *runID)

	var stamps []uint32
	for _, chunk := range table.Column(6).Data().Chunks() {
		a := chunk.(*array.Uint32)
		for i := 0; i < a.Len(); i++ {
			stamps = append(stamps, a.Value(i))
		}
	}
	assert.Equal(t, []uint32{3, 12}, stamps)
}

func TestParquetWriter_Compression(t *testing.T) {
	for _, c := range []CompressionType{CompressionNone, CompressionSnappy, CompressionGzip, CompressionZstd} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewParquetWriter(&buf, Config{Compression: c})
			require.NoError(t, err)
			writeAll(t, w, sampleEvents())
			assert.Equal(t, "PAR1", buf.String()[:4])
		})
	}
}

func TestXLSXWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewXLSXWriter(&buf, Config{Metadata: map[string]string{"run_id": "r1"}})
	require.NoError(t, err)
	writeAll(t, w, sampleEvents())
	assert.Equal(t, 2, w.Rows())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"30:Train.Cross", "30", "UPPAALtrace", "Train", "0", "end", "12", "30:Train.Cross"}, rows[2])

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "r1", props.Identifier)
}

func TestNew(t *testing.T) {
	for _, f := range []Format{FormatTSV, FormatParquet, FormatXLSX} {
		w, err := New(f, &bytes.Buffer{}, Config{})
		require.NoError(t, err, f.String())
		require.NoError(t, w.Close())
	}
	_, err := New(Format(9), &bytes.Buffer{}, Config{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTSV, false},
		{"TSV", FormatTSV, false},
		{"octopus", FormatTSV, false},
		{"parquet", FormatParquet, false},
		{"excel", FormatXLSX, false},
		{"csv", FormatTSV, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatTSV, FormatFromPath("events.tsv"))
	assert.Equal(t, FormatTSV, FormatFromPath("-"))
	assert.Equal(t, FormatParquet, FormatFromPath("s3://b/run/events.PARQUET"))
	assert.Equal(t, FormatXLSX, FormatFromPath("events.xlsx"))
	assert.Equal(t, FormatTSV, FormatFromPath("events.tsv.gz"))
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, CompressionZstd, ParseCompression("zstd"))
	assert.Equal(t, CompressionNone, ParseCompression("none"))
	assert.Equal(t, CompressionNone, ParseCompression("brotli"))
	assert.Equal(t, "lz4", CompressionLZ4.String())
}
