package parser

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/logflow/uppaal2octopus/internal/model"
	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
	"github.com/logflow/uppaal2octopus/pkg/uppaal"
)

// XTRParser decodes XTR symbolic traces against a model.
type XTRParser struct {
	cfg Config
	m   *uppaal.Model
}

// NewXTRParser creates a new XTR parser for traces of m.
func NewXTRParser(m *uppaal.Model, cfg Config) *XTRParser {
	return &XTRParser{
		cfg: cfg.withDefaults(),
		m:   m,
	}
}

// Parse implements the Parser interface. The initial state yields a start
// fact per process; every later step yields, for each process that moved,
// an end fact for the edge source and a start fact for the edge target,
// both at the clock value of the new state.
func (p *XTRParser) Parse(ctx context.Context, r io.Reader, emit FactFunc) error {
	if _, err := p.m.FindClock(p.cfg.OriginClock); err != nil {
		return err
	}
	if _, err := p.m.FindClock(p.cfg.ActiveClock); err != nil {
		return err
	}

	dec := uppaal.NewDecoder(p.m, bufio.NewReaderSize(r, p.cfg.BufferSize))

	state, err := dec.Initial()
	if err != nil {
		return err
	}
	clock, err := p.clock(state, dec.Step())
	if err != nil {
		return err
	}
	for proc, local := range state.Locations {
		loc, err := p.m.LocalLocation(proc, local)
		if err != nil {
			return err
		}
		if err := emit(p.fact(proc, loc, clock, model.Start)); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return cerrors.ContextCanceled("xtr")
		default:
		}

		state, transition, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		clock, err := p.clock(state, dec.Step())
		if err != nil {
			return err
		}

		for proc := range p.m.Processes {
			ordinal, moved := transition.Edge(proc)
			if !moved {
				continue
			}
			edge, err := p.m.LocalEdge(proc, ordinal)
			if err != nil {
				return err
			}
			source, err := p.m.Location(edge.Source)
			if err != nil {
				return err
			}
			target, err := p.m.Location(edge.Target)
			if err != nil {
				return err
			}
			if err := emit(p.fact(proc, source, clock, model.End)); err != nil {
				return err
			}
			if err := emit(p.fact(proc, target, clock, model.Start)); err != nil {
				return err
			}
		}
	}

	p.cfg.Logger.Debug("xtr trace decoded", slog.Int("steps", dec.Step()))
	return nil
}

// clock reconstructs the active clock value of a state.
func (p *XTRParser) clock(s *uppaal.State, step int) (uint32, error) {
	v, err := uppaal.ClockValue(p.m, s, p.cfg.OriginClock, p.cfg.ActiveClock)
	if err != nil {
		var cErr *cerrors.ConvertError
		if errors.As(err, &cErr) {
			cErr.WithContext("step", step)
		}
		return 0, err
	}
	if p.cfg.Logger.Enabled(context.Background(), slog.LevelDebug) {
		p.cfg.Logger.Debug("state decoded",
			slog.Int("step", step),
			slog.Any("clock", v),
			slog.String("zone", s.Zone.String(p.m.Clocks)))
	}
	return v, nil
}

func (p *XTRParser) fact(proc int, loc *uppaal.LocationCell, clock uint32, ind model.Indicator) model.Fact {
	return model.Fact{
		Location:  model.Location{Process: p.m.Processes[proc].Name, Name: loc.Name},
		Clock:     clock,
		Indicator: ind,
	}
}
