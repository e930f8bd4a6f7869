// Package converter pairs start/end facts into Octopus events.
//
// A Converter keeps at most one pending interval per process. An end fact
// closes the pending interval of its process; the interval is emitted as
// a start event and an end event sharing one event id, unless it has zero
// duration or belongs to an internal location (empty name or a leading
// underscore). Flush closes whatever is still pending against the last
// clock value seen.
package converter

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/logflow/uppaal2octopus/internal/model"
	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

// DefaultLocationIDFloor is the first synthesized location id. The
// visualizer gives lower page numbers a special meaning.
const DefaultLocationIDFloor uint32 = 30

// EmitFunc receives events in emission order. Returning an error aborts
// the conversion.
type EmitFunc func(model.Event) error

// Options configures a Converter.
type Options struct {
	// LocationIDFloor is the first location id handed out.
	// Zero selects DefaultLocationIDFloor.
	LocationIDFloor uint32

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Stats summarizes a conversion.
type Stats struct {
	Facts      int64
	Intervals  int64
	Events     int64
	Suppressed int64
	Flushed    int64
	Locations  int
	LastClock  uint32
}

type pending struct {
	location model.Location
	clock    uint32
}

// Converter is the event synthesizer. It is not safe for concurrent use.
type Converter struct {
	emit   EmitFunc
	logger *slog.Logger

	pending   map[string]pending
	seen      map[string]struct{}
	processes []string // first-seen order, drives Flush
	locations map[model.Location]uint32

	nextEventID    uint32
	nextLocationID uint32
	lastClock      uint32

	stats Stats
	err   error
}

// New creates a Converter that passes events to emit.
func New(emit EmitFunc, opts Options) *Converter {
	if opts.LocationIDFloor == 0 {
		opts.LocationIDFloor = DefaultLocationIDFloor
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Converter{
		emit:           emit,
		logger:         opts.Logger,
		pending:        make(map[string]pending),
		seen:           make(map[string]struct{}),
		locations:      make(map[model.Location]uint32),
		nextLocationID: opts.LocationIDFloor,
	}
}

// Add consumes one fact. Its signature matches parser.FactFunc.
func (c *Converter) Add(f model.Fact) error {
	if c.err != nil {
		return c.err
	}
	if err := c.add(f); err != nil {
		c.err = err
		return err
	}
	return nil
}

func (c *Converter) add(f model.Fact) error {
	c.stats.Facts++
	c.lastClock = f.Clock

	proc := f.Location.Process
	p, open := c.pending[proc]

	switch f.Indicator {
	case model.Start:
		if open {
			return cerrors.UnmatchedStart(proc).
				WithContext("pending", p.location.String()).
				WithContext("location", f.Location.String())
		}
		if _, ok := c.seen[proc]; !ok {
			c.seen[proc] = struct{}{}
			c.processes = append(c.processes, proc)
		}
		c.pending[proc] = pending{location: f.Location, clock: f.Clock}
		return nil

	case model.End:
		if !open {
			return cerrors.UnmatchedEnd(proc).WithContext("location", f.Location.String())
		}
		delete(c.pending, proc)
		return c.close(p, f.Clock)

	default:
		return cerrors.Formatf("converter", "unknown indicator %d", f.Indicator)
	}
}

// Flush closes every pending interval against the last observed clock,
// in the order processes were first seen.
func (c *Converter) Flush() error {
	if c.err != nil {
		return c.err
	}
	for _, proc := range c.processes {
		p, ok := c.pending[proc]
		if !ok {
			continue
		}
		delete(c.pending, proc)
		c.stats.Flushed++
		if err := c.close(p, c.lastClock); err != nil {
			c.err = err
			return err
		}
	}
	return nil
}

// Stats returns conversion counters.
func (c *Converter) Stats() Stats {
	s := c.stats
	s.Locations = len(c.locations)
	s.LastClock = c.lastClock
	return s
}

func (c *Converter) close(p pending, end uint32) error {
	c.stats.Intervals++

	if end < p.clock {
		return cerrors.Format("converter", "interval ends before it starts").
			WithContext("location", p.location.String()).
			WithContext("start", p.clock).
			WithContext("end", end)
	}
	if end == p.clock || internal(p.location.Name) {
		c.stats.Suppressed++
		c.logger.Debug("interval suppressed",
			slog.String("location", p.location.String()),
			slog.Any("start", p.clock),
			slog.Any("end", end))
		return nil
	}

	id := c.locationID(p.location)
	label := strconv.FormatUint(uint64(id), 10) + ":" + p.location.String()

	ev := model.Event{
		JobID:      label,
		PageNumber: id,
		Scenario:   model.Scenario,
		Resource:   p.location.Process,
		EventID:    c.nextEventID,
		Indicator:  model.Start,
		Timestamp:  p.clock,
		Label:      label,
	}
	c.nextEventID++

	if err := c.send(ev); err != nil {
		return err
	}
	ev.Indicator = model.End
	ev.Timestamp = end
	return c.send(ev)
}

func (c *Converter) send(ev model.Event) error {
	if err := c.emit(ev); err != nil {
		return err
	}
	c.stats.Events++
	return nil
}

// locationID returns the id of loc, allocating the next one on first use.
func (c *Converter) locationID(loc model.Location) uint32 {
	if id, ok := c.locations[loc]; ok {
		return id
	}
	id := c.nextLocationID
	c.nextLocationID++
	c.locations[loc] = id
	return id
}

// internal reports whether a location is hidden from the visualizer.
func internal(name string) bool {
	return name == "" || strings.HasPrefix(name, "_")
}
