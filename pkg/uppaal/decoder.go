package uppaal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode"

	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

// terminator ends every record of an XTR trace, and a lone terminator
// where a state is expected ends the trace.
const terminator = "."

// Decoder reads an XTR trace one symbolic step at a time. The trace is
// an initial state followed by (state, transition) pairs, where the
// transition is the one leading into the state, and ends with '.'.
type Decoder struct {
	m    *Model
	r    *bufio.Reader
	step int

	peeked  string
	hasPeek bool
	started bool
	done    bool
}

// NewDecoder creates a decoder for a trace of model m.
func NewDecoder(m *Model, r io.Reader) *Decoder {
	return &Decoder{
		m: m,
		r: bufio.NewReader(r),
	}
}

// Step returns the number of the last decoded state, 0 for the initial one.
func (d *Decoder) Step() int {
	return d.step
}

// Initial reads the initial state. It must be called once, before Next.
func (d *Decoder) Initial() (*State, error) {
	if d.started {
		return nil, d.fail("initial state already read")
	}
	d.started = true
	return d.readState()
}

// Next reads the next state and the transition leading into it. It
// returns io.EOF once the end of the trace has been reached.
func (d *Decoder) Next() (*State, *Transition, error) {
	if !d.started {
		return nil, nil, d.fail("initial state not read")
	}
	if d.done {
		return nil, nil, io.EOF
	}

	tok, err := d.peek()
	if err != nil {
		return nil, nil, err
	}
	if tok == terminator {
		d.consume()
		d.done = true
		return nil, nil, io.EOF
	}

	d.step++
	s, err := d.readState()
	if err != nil {
		return nil, nil, err
	}
	t, err := d.readTransition()
	if err != nil {
		return nil, nil, err
	}
	return s, t, nil
}

// readState reads the location vector, the zone and the variable vector.
func (d *Decoder) readState() (*State, error) {
	s := NewState(d.m)

	for p := range s.Locations {
		loc, err := d.readInt("location")
		if err != nil {
			return nil, err
		}
		if _, err := d.m.LocalLocation(p, loc); err != nil {
			return nil, d.wrap(err, "invalid location")
		}
		s.Locations[p] = loc
	}
	if err := d.expect(terminator); err != nil {
		return nil, err
	}

	for {
		tok, err := d.peek()
		if err != nil {
			return nil, err
		}
		if tok == terminator {
			d.consume()
			break
		}
		v, err := d.readInts("constraint", 3)
		if err != nil {
			return nil, err
		}
		if err := s.Zone.Set(v[0], v[1], DecodeBound(int32(v[2]))); err != nil {
			return nil, d.wrap(err, "invalid constraint")
		}
		if err := d.expect(terminator); err != nil {
			return nil, err
		}
	}

	for i := range s.Integers {
		v, err := d.readInt("variable")
		if err != nil {
			return nil, err
		}
		s.Integers[i] = v
	}
	if err := d.expect(terminator); err != nil {
		return nil, err
	}

	return s, nil
}

// readTransition reads "process ordinal ." records until a lone terminator.
func (d *Decoder) readTransition() (*Transition, error) {
	t := NewTransition(d.m)
	for {
		tok, err := d.peek()
		if err != nil {
			return nil, err
		}
		if tok == terminator {
			d.consume()
			return t, nil
		}
		v, err := d.readInts("edge", 2)
		if err != nil {
			return nil, err
		}
		process, ordinal := v[0], v[1]-1
		if _, err := d.m.LocalEdge(process, ordinal); err != nil {
			return nil, d.wrap(err, "invalid edge")
		}
		t.Edges[process] = ordinal
		if err := d.expect(terminator); err != nil {
			return nil, err
		}
	}
}

// readInts reads n integers.
func (d *Decoder) readInts(what string, n int) ([]int, error) {
	out := make([]int, n)
	for i := range out {
		v, err := d.readInt(what)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// readInt reads one integer token.
func (d *Decoder) readInt(what string) (int, error) {
	tok, err := d.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, d.fail(fmt.Sprintf("expected %s number, got %q", what, tok))
	}
	return int(v), nil
}

// expect consumes the given token.
func (d *Decoder) expect(want string) error {
	tok, err := d.next()
	if err != nil {
		return err
	}
	if tok != want {
		return d.fail(fmt.Sprintf("expected %q, got %q", want, tok))
	}
	return nil
}

func (d *Decoder) peek() (string, error) {
	if !d.hasPeek {
		tok, err := d.scan()
		if err != nil {
			return "", err
		}
		d.peeked, d.hasPeek = tok, true
	}
	return d.peeked, nil
}

func (d *Decoder) consume() {
	d.hasPeek = false
}

func (d *Decoder) next() (string, error) {
	tok, err := d.peek()
	if err != nil {
		return "", err
	}
	d.consume()
	return tok, nil
}

// scan returns the next token: a lone '.' or a run of characters up to
// white space or '.'. Running out of input is always an error, since a
// complete trace ends with its own terminator.
func (d *Decoder) scan() (string, error) {
	var buf []byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", cerrors.Wrap(err, cerrors.CodeIO, "failed to read trace").
					WithContext("stage", "xtr").
					WithContext("step", d.step)
			}
			if len(buf) > 0 {
				return string(buf), nil
			}
			return "", d.fail("unexpected end of trace")
		}

		switch {
		case unicode.IsSpace(rune(b)):
			if len(buf) > 0 {
				return string(buf), nil
			}
		case b == '.':
			if len(buf) > 0 {
				if err := d.r.UnreadByte(); err != nil {
					return "", cerrors.Wrap(err, cerrors.CodeIO, "failed to read trace")
				}
				return string(buf), nil
			}
			return terminator, nil
		default:
			buf = append(buf, b)
		}
	}
}

func (d *Decoder) fail(msg string) error {
	return cerrors.Format("xtr", msg).WithContext("step", d.step)
}

func (d *Decoder) wrap(err error, msg string) error {
	return cerrors.Wrap(err, cerrors.CodeInvalidFormat, msg).
		WithContext("stage", "xtr").
		WithContext("step", d.step)
}
