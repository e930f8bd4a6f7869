package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, RunReport{
		RunID:      "r1",
		Model:      "train-gate.if",
		Trace:      "train-gate.xtr",
		Output:     "events.tsv",
		Format:     "tsv",
		Events:     1200,
		Intervals:  610,
		Suppressed: 10,
		LastClock:  42,
		Duration:   1500 * time.Millisecond,
	})

	out := buf.String()
	for _, want := range []string{"train-gate.xtr", "train-gate.if", "events.tsv (tsv)", "1.2K", "610, 10 suppressed", "42", "1.5s"} {
		assert.Contains(t, out, want)
	}
}

func TestPrintModelSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintModelSummary(&buf, ModelSummary{
		Path:   "train-gate.if",
		Clocks: []string{"t(0)", "c", "x"},
		Processes: []ProcessSummary{
			{Name: "Train", Initial: "Safe", Locations: []string{"Safe", "Appr", "Cross"}, Edges: 4},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "t(0), c, x")
	assert.Contains(t, out, "Train")
	assert.Contains(t, out, "Cross")
}

func TestPrintError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		verbose   bool
		wantStack bool
	}{
		{"plain", errors.New("[E201] zone does not connect clocks"), false, false},
		{"plain verbose", errors.New("[E201] zone does not connect clocks"), true, false},
		{"coded", cerrors.NoPath("t(0)", "c"), false, false},
		{"coded verbose", cerrors.NoPath("t(0)", "c"), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			PrintError(&buf, tt.err, tt.verbose)
			out := buf.String()
			assert.True(t, strings.Contains(out, "E201"))
			assert.Equal(t, tt.wantStack, strings.Contains(out, "  at "), out)
		})
	}
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "12.5K", formatNumber(12500))
	assert.Equal(t, "3.0M", formatNumber(3000000))

	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(125*time.Second))
}

func TestProgressReader(t *testing.T) {
	r := ProgressReader(strings.NewReader("0 .\n.\n"), 6, "decoding")
	var buf bytes.Buffer
	_, err := buf.ReadFrom(r)
	assert.NoError(t, err)
	assert.Equal(t, "0 .\n.\n", buf.String())
}
