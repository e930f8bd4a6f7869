package converter

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/uppaal2octopus/internal/model"
	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

func fact(proc, loc string, clock uint32, ind model.Indicator) model.Fact {
	return model.Fact{Location: model.Location{Process: proc, Name: loc}, Clock: clock, Indicator: ind}
}

// run feeds facts to a fresh converter, flushes, and returns the events.
func run(t *testing.T, opts Options, facts ...model.Fact) ([]model.Event, *Converter) {
	t.Helper()
	var events []model.Event
	c := New(func(ev model.Event) error {
		events = append(events, ev)
		return nil
	}, opts)
	for _, f := range facts {
		require.NoError(t, c.Add(f))
	}
	require.NoError(t, c.Flush())
	return events, c
}

func TestConverter_Pairing(t *testing.T) {
	events, c := run(t, Options{},
		fact("P", "A", 3, model.Start),
		fact("P", "A", 7, model.End),
		fact("P", "B", 7, model.Start),
	)

	// P.B is flushed at 7 with zero duration and suppressed.
	require.Len(t, events, 2)
	want := model.Event{
		JobID:      "30:P.A",
		PageNumber: 30,
		Scenario:   "UPPAALtrace",
		Resource:   "P",
		EventID:    0,
		Indicator:  model.Start,
		Timestamp:  3,
		Label:      "30:P.A",
	}
	assert.Equal(t, want, events[0])
	want.Indicator = model.End
	want.Timestamp = 7
	assert.Equal(t, want, events[1])

	s := c.Stats()
	assert.Equal(t, int64(3), s.Facts)
	assert.Equal(t, int64(2), s.Intervals)
	assert.Equal(t, int64(2), s.Events)
	assert.Equal(t, int64(1), s.Suppressed)
	assert.Equal(t, int64(1), s.Flushed)
	assert.Equal(t, 1, s.Locations)
	assert.Equal(t, uint32(7), s.LastClock)
}

func TestConverter_IDs(t *testing.T) {
	events, _ := run(t, Options{},
		fact("P", "A", 0, model.Start),
		fact("Q", "X", 0, model.Start),
		fact("P", "A", 2, model.End),
		fact("P", "B", 2, model.Start),
		fact("Q", "X", 4, model.End),
		fact("Q", "X", 4, model.Start),
		fact("P", "B", 5, model.End),
		fact("P", "A", 5, model.Start),
		fact("Q", "X", 9, model.End),
		fact("Q", "Y", 9, model.Start),
		fact("P", "A", 10, model.End),
	)

	// Q.Y is still open and is flushed against clock 10.
	require.Len(t, events, 12)

	// Event ids increase by one per interval; start and end share an id.
	for i := 0; i < len(events); i += 2 {
		assert.Equal(t, uint32(i/2), events[i].EventID)
		assert.Equal(t, events[i].EventID, events[i+1].EventID)
		assert.Equal(t, model.Start, events[i].Indicator)
		assert.Equal(t, model.End, events[i+1].Indicator)
		assert.LessOrEqual(t, events[i].Timestamp, events[i+1].Timestamp)
	}

	// Location ids are stable and injective.
	ids := map[string]uint32{}
	for _, ev := range events {
		loc := strings.SplitN(ev.Label, ":", 2)[1]
		assert.Equal(t, ev.Label, ev.JobID)
		if id, ok := ids[loc]; ok {
			assert.Equal(t, id, ev.PageNumber, loc)
		}
		ids[loc] = ev.PageNumber
	}
	assert.Equal(t, map[string]uint32{"P.A": 30, "Q.X": 31, "P.B": 32, "Q.Y": 33}, ids)
}

func TestConverter_Suppression(t *testing.T) {
	tests := []struct {
		name  string
		facts []model.Fact
	}{
		{
			name: "zero duration",
			facts: []model.Fact{
				fact("P", "A", 4, model.Start),
				fact("P", "A", 4, model.End),
			},
		},
		{
			name: "underscore location",
			facts: []model.Fact{
				fact("P", "_tmp", 1, model.Start),
				fact("P", "_tmp", 4, model.End),
			},
		},
		{
			name: "empty location name",
			facts: []model.Fact{
				fact("P", "", 1, model.Start),
				fact("P", "", 4, model.End),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, c := run(t, Options{}, tt.facts...)
			assert.Empty(t, events)
			assert.Equal(t, int64(1), c.Stats().Suppressed)
			assert.Equal(t, 0, c.Stats().Locations)
		})
	}
}

func TestConverter_SuppressedDoNotConsumeIDs(t *testing.T) {
	events, _ := run(t, Options{},
		fact("P", "_init", 0, model.Start),
		fact("P", "_init", 2, model.End),
		fact("P", "A", 2, model.Start),
		fact("P", "A", 6, model.End),
	)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(0), events[0].EventID)
	assert.Equal(t, uint32(30), events[0].PageNumber)
}

func TestConverter_FlushUsesLastClock(t *testing.T) {
	events, c := run(t, Options{},
		fact("P", "A", 0, model.Start),
		fact("Q", "B", 1, model.Start),
		fact("R", "C", 2, model.Start),
		fact("R", "C", 8, model.End),
	)

	// R.C closes normally; P.A and Q.B are flushed at 8 in first-seen order.
	require.Len(t, events, 6)
	assert.Equal(t, "R", events[0].Resource)
	assert.Equal(t, "P", events[2].Resource)
	assert.Equal(t, uint32(8), events[3].Timestamp)
	assert.Equal(t, "Q", events[4].Resource)
	assert.Equal(t, uint32(1), events[4].Timestamp)
	assert.Equal(t, uint32(8), events[5].Timestamp)
	assert.Equal(t, int64(2), c.Stats().Flushed)
}

func TestConverter_FlushAfterClockDecrease(t *testing.T) {
	// The clock of the latest fact is used even when an earlier fact
	// carried a larger value.
	var events []model.Event
	c := New(func(ev model.Event) error {
		events = append(events, ev)
		return nil
	}, Options{})
	require.NoError(t, c.Add(fact("P", "A", 6, model.Start)))
	require.NoError(t, c.Add(fact("Q", "X", 3, model.Start)))
	assert.Equal(t, uint32(3), c.Stats().LastClock)

	err := c.Flush()
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrFormat)
	var cErr *cerrors.ConvertError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "P.A", cErr.Context["location"])
	assert.Equal(t, uint32(6), cErr.Context["start"])
	assert.Equal(t, uint32(3), cErr.Context["end"])
	assert.Empty(t, events)
}

func TestConverter_FlushIdempotent(t *testing.T) {
	events, c := run(t, Options{},
		fact("P", "A", 0, model.Start),
		fact("Q", "B", 3, model.Start),
	)
	require.Len(t, events, 2)

	require.NoError(t, c.Flush())
	assert.Equal(t, int64(2), c.Stats().Events)
	assert.Equal(t, int64(2), c.Stats().Flushed)
}

func TestConverter_LocationIDFloor(t *testing.T) {
	events, _ := run(t, Options{LocationIDFloor: 100},
		fact("P", "A", 0, model.Start),
		fact("P", "A", 1, model.End),
	)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(100), events[0].PageNumber)
	assert.Equal(t, "100:P.A", events[0].Label)
}

func TestConverter_Errors(t *testing.T) {
	tests := []struct {
		name  string
		facts []model.Fact
		code  cerrors.Code
	}{
		{
			name:  "end without start",
			facts: []model.Fact{fact("P", "A", 1, model.End)},
			code:  cerrors.CodeUnmatchedEnd,
		},
		{
			name: "start while pending",
			facts: []model.Fact{
				fact("P", "A", 1, model.Start),
				fact("P", "B", 2, model.Start),
			},
			code: cerrors.CodeUnmatchedStart,
		},
		{
			name: "end before start",
			facts: []model.Fact{
				fact("P", "A", 5, model.Start),
				fact("P", "A", 2, model.End),
			},
			code: cerrors.CodeInvalidFormat,
		},
		{
			name:  "unknown indicator",
			facts: []model.Fact{fact("P", "A", 1, model.Indicator(7))},
			code:  cerrors.CodeInvalidFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(func(model.Event) error { return nil }, Options{})
			var err error
			for _, f := range tt.facts {
				if err = c.Add(f); err != nil {
					break
				}
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, cerrors.GetCode(err))

			// The converter stays failed.
			assert.Equal(t, err, c.Add(fact("Z", "A", 9, model.Start)))
			assert.Equal(t, err, c.Flush())
		})
	}
}

func TestConverter_EmitError(t *testing.T) {
	sink := errors.New("disk full")
	calls := 0
	c := New(func(model.Event) error {
		calls++
		return sink
	}, Options{})

	require.NoError(t, c.Add(fact("P", "A", 0, model.Start)))
	err := c.Add(fact("P", "A", 3, model.End))
	assert.ErrorIs(t, err, sink)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(0), c.Stats().Events)
	assert.ErrorIs(t, c.Flush(), sink)
}
