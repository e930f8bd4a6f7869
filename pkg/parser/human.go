package parser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/logflow/uppaal2octopus/internal/model"
	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

// Keywords of the human-readable trace dump.
const (
	hrState       = "State"
	hrOpen        = "("
	hrClose       = ")"
	hrTransitions = "Transitions:"
	hrBlockOpen   = "{"
	hrBlockClose  = "}"
	hrEnd         = "."
)

// Constraint token shapes inside a state.
var (
	hrClockBound = regexp.MustCompile(`^([^-]+)([><]=)(.+)$`)
	hrDiffBound  = regexp.MustCompile(`^(.+)-(.+)([><]=)(.+)$`)
	hrAssignment = regexp.MustCompile(`^(.+)=(.+)$`)
	hrEdge       = regexp.MustCompile(`^(.+)->(.+)$`)
)

// HumanParser decodes the textual trace dump, e.g.
//
//	State ( P.A Q.B ) c>=3, x<=4, t(0)-c<=-3, n=1
//	Transitions: P.A->P.C { x>1, tau, x := 0 }
//	State ( P.C Q.B ) c>=7,
//	.
type HumanParser struct {
	cfg Config
}

// NewHumanParser creates a new human-readable trace parser.
func NewHumanParser(cfg Config) *HumanParser {
	return &HumanParser{cfg: cfg.withDefaults()}
}

// hrStep is one State block.
type hrStep struct {
	locations []model.Location
	clock     uint32
}

// hrTransition is one edge of a Transitions block.
type hrTransition struct {
	from, to model.Location
}

// tokens walks the dump word by word. A lone "." ends the dump.
type tokens struct {
	sc    *bufio.Scanner
	cur   string
	count int
	eof   bool
}

func (t *tokens) advance() bool {
	if t.eof {
		return false
	}
	if !t.sc.Scan() {
		t.eof = true
		t.cur = ""
		return false
	}
	t.count++
	t.cur = t.sc.Text()
	if t.cur == hrEnd {
		t.eof = true
		return false
	}
	return true
}

// Parse implements the Parser interface. Every location of the first
// state yields a start fact; every edge of a later Transitions block
// yields an end fact for its source and a start fact for its target, at
// the clock value of the state that follows the block.
func (p *HumanParser) Parse(ctx context.Context, r io.Reader, emit FactFunc) error {
	sc := bufio.NewScanner(bufio.NewReaderSize(r, p.cfg.BufferSize))
	sc.Buffer(make([]byte, 0, 4096), 1024*1024)
	sc.Split(bufio.ScanWords)
	t := &tokens{sc: sc}

	if !t.advance() {
		if err := sc.Err(); err != nil {
			return cerrors.Wrap(err, cerrors.CodeIO, "failed to read trace").WithContext("stage", "hr")
		}
		return p.fail(t, "empty trace")
	}

	first, err := p.readState(t)
	if err != nil {
		return err
	}
	for _, loc := range first.locations {
		if err := emit(model.Fact{Location: loc, Clock: first.clock, Indicator: model.Start}); err != nil {
			return err
		}
	}

	states := 1
	for !t.eof && t.cur == hrTransitions {
		select {
		case <-ctx.Done():
			return cerrors.ContextCanceled("hr")
		default:
		}

		edges, err := p.readTransitions(t)
		if err != nil {
			return err
		}
		next, err := p.readState(t)
		if err != nil {
			return err
		}
		states++

		for _, e := range edges {
			if err := emit(model.Fact{Location: e.from, Clock: next.clock, Indicator: model.End}); err != nil {
				return err
			}
			if err := emit(model.Fact{Location: e.to, Clock: next.clock, Indicator: model.Start}); err != nil {
				return err
			}
		}
	}

	if err := sc.Err(); err != nil {
		return cerrors.Wrap(err, cerrors.CodeIO, "failed to read trace").WithContext("stage", "hr")
	}
	p.cfg.Logger.Debug("human-readable trace decoded", slog.Int("states", states))
	return nil
}

// readState reads "State ( p.l ... )" and the constraints that follow,
// up to "Transitions:" or the end of the dump.
func (p *HumanParser) readState(t *tokens) (*hrStep, error) {
	if t.cur != hrState {
		return nil, p.fail(t, fmt.Sprintf("expected %q, got %q", hrState, t.cur))
	}
	if !t.advance() || t.cur != hrOpen {
		return nil, p.fail(t, fmt.Sprintf("expected %q after %q", hrOpen, hrState))
	}
	if !t.advance() {
		return nil, p.fail(t, "unterminated location list")
	}

	s := &hrStep{}
	for t.cur != hrClose {
		loc, err := p.splitLocation(t, t.cur)
		if err != nil {
			return nil, err
		}
		s.locations = append(s.locations, loc)
		if !t.advance() {
			return nil, p.fail(t, "unterminated location list")
		}
	}

	var foundLower, foundUpper bool
	for t.advance() && t.cur != hrTransitions {
		tok := strings.TrimSuffix(t.cur, ",")
		if tok == "" {
			continue
		}

		if m := hrClockBound.FindStringSubmatch(tok); m != nil {
			if m[1] != p.cfg.ActiveClock {
				continue
			}
			switch {
			case m[2] == ">=":
				// A lower bound takes precedence over any upper bound.
				v, err := p.clockValue(t, m[3])
				if err != nil {
					return nil, err
				}
				s.clock = v
				foundLower = true
			case !foundLower && !foundUpper:
				v, err := p.clockValue(t, m[3])
				if err != nil {
					return nil, err
				}
				s.clock = v
				foundUpper = true
			}
			continue
		}
		if hrDiffBound.MatchString(tok) || hrAssignment.MatchString(tok) {
			continue
		}
		return nil, p.fail(t, fmt.Sprintf("unexpected token %q in state", tok))
	}

	if !foundLower && !foundUpper {
		return nil, cerrors.MissingClock("hr", p.cfg.ActiveClock).WithContext("token", t.count)
	}
	return s, nil
}

// readTransitions reads a Transitions block up to the next State keyword.
func (p *HumanParser) readTransitions(t *tokens) ([]hrTransition, error) {
	if !t.advance() {
		return nil, p.fail(t, "empty transitions block")
	}

	var edges []hrTransition
	for {
		m := hrEdge.FindStringSubmatch(t.cur)
		if m == nil {
			return nil, p.fail(t, fmt.Sprintf("expected edge, got %q", t.cur))
		}
		from, err := p.splitLocation(t, m[1])
		if err != nil {
			return nil, err
		}
		to, err := p.splitLocation(t, m[2])
		if err != nil {
			return nil, err
		}
		edges = append(edges, hrTransition{from: from, to: to})

		if !t.advance() || t.cur != hrBlockOpen {
			return nil, p.fail(t, fmt.Sprintf("expected %q after edge", hrBlockOpen))
		}
		if err := p.skipEdgeLabels(t); err != nil {
			return nil, err
		}
		if t.cur == hrState {
			return edges, nil
		}
	}
}

// skipEdgeLabels consumes "{ guard, sync, update, ... }". A field ends
// with a token carrying a trailing comma; field 0 is the guard, field 1
// the synchronisation and the rest are updates. Labels are not used for
// conversion and are only logged.
func (p *HumanParser) skipEdgeLabels(t *tokens) error {
	var fields []string
	var field []string

	for {
		if !t.advance() {
			return p.fail(t, "unterminated edge label block")
		}
		if t.cur == hrBlockClose {
			break
		}
		field = append(field, t.cur)
		if strings.HasSuffix(t.cur, ",") {
			fields = append(fields, strings.TrimSuffix(strings.Join(field, " "), ","))
			field = field[:0]
		}
	}
	fields = append(fields, strings.Join(field, " "))

	if !t.advance() {
		return p.fail(t, "trace ends inside a transitions block")
	}

	if p.cfg.Logger.Enabled(context.Background(), slog.LevelDebug) {
		attrs := []any{slog.Int("token", t.count)}
		for i, f := range fields {
			switch i {
			case 0:
				attrs = append(attrs, slog.String("guard", f))
			case 1:
				attrs = append(attrs, slog.String("sync", f))
			default:
				attrs = append(attrs, slog.String("update", f))
			}
		}
		p.cfg.Logger.Debug("edge labels", attrs...)
	}
	return nil
}

// splitLocation splits "process.location" on the last dot; location
// names may themselves contain dots.
func (p *HumanParser) splitLocation(t *tokens, s string) (model.Location, error) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return model.Location{}, p.fail(t, fmt.Sprintf("malformed location %q", s))
	}
	return model.Location{Process: s[:i], Name: s[i+1:]}, nil
}

func (p *HumanParser) clockValue(t *tokens, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, p.fail(t, fmt.Sprintf("malformed value %q for clock %s", s, p.cfg.ActiveClock))
	}
	return uint32(v), nil
}

func (p *HumanParser) fail(t *tokens, msg string) error {
	return cerrors.Format("hr", msg).WithContext("token", t.count)
}
