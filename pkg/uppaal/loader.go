package uppaal

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

// Section names of the intermediate format.
const (
	sectionLayout       = "layout"
	sectionInstructions = "instructions"
	sectionProcesses    = "processes"
	sectionLocations    = "locations"
	sectionEdges        = "edges"
	sectionExpressions  = "expressions"
)

// loader carries the line position while reading an intermediate format file.
type loader struct {
	m       *Model
	section string
	line    int
}

// LoadModel reads a model in the intermediate format. A section starts
// with its name on a line of its own and runs until the next blank line.
// Lines starting with '#' are comments.
func LoadModel(r io.Reader) (*Model, error) {
	l := &loader{
		m: &Model{Expressions: make(map[int]string)},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		l.line++
		text := strings.TrimRight(scanner.Text(), "\r")

		if strings.HasPrefix(text, "#") {
			continue
		}

		// A blank line, or one starting with white space, closes the section.
		if l.section != "" && (text == "" || text[0] == ' ' || text[0] == '\t') {
			l.section = ""
		}

		if l.section == "" {
			header := strings.TrimSpace(text)
			if header == "" {
				continue
			}
			if err := l.enter(header); err != nil {
				return nil, err
			}
			continue
		}

		if err := l.parseLine(text); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, cerrors.Wrap(err, cerrors.CodeIO, "failed to read model").
			WithContext("stage", "model").
			WithContext("line", l.line)
	}

	return l.m, nil
}

// enter starts a new section.
func (l *loader) enter(header string) error {
	name := strings.Fields(header)[0]
	switch name {
	case sectionLayout, sectionInstructions, sectionProcesses,
		sectionLocations, sectionEdges, sectionExpressions:
		l.section = name
		return nil
	default:
		return l.fail("unknown section " + strconv.Quote(name))
	}
}

// parseLine dispatches a section body line.
func (l *loader) parseLine(text string) error {
	switch l.section {
	case sectionLayout:
		return l.parseLayout(text)
	case sectionInstructions:
		return l.parseInstruction(text)
	case sectionProcesses:
		return l.parseProcess(text)
	case sectionLocations:
		return l.parseLocation(text)
	case sectionEdges:
		return l.parseEdge(text)
	case sectionExpressions:
		return l.parseExpression(text)
	}
	return l.fail("line outside of a section")
}

// fail builds a FormatError pointing at the current line.
func (l *loader) fail(msg string) error {
	err := cerrors.Format("model", msg).WithContext("line", l.line)
	if l.section != "" {
		err.WithContext("section", l.section)
	}
	return err
}

// parseLayout handles one cell declaration. The leading index is
// validated but cells are stored positionally, which is how the
// locations section addresses them.
func (l *loader) parseLayout(text string) error {
	fields := strings.SplitN(text, ":", 3)
	if len(fields) < 2 {
		return l.fail("malformed layout entry " + strconv.Quote(text))
	}
	if _, err := strconv.Atoi(fields[0]); err != nil {
		return l.fail("malformed layout index " + strconv.Quote(fields[0]))
	}

	rest := ""
	if len(fields) == 3 {
		rest = fields[2]
	}

	var cell Cell
	switch fields[1] {
	case "clock":
		parts := strings.SplitN(rest, ":", 2)
		nr, ok := l.ints(parts[:1])
		if !ok || len(parts) != 2 || !validName(parts[1]) {
			return l.fail("malformed clock " + strconv.Quote(text))
		}
		cell = ClockCell{Name: parts[1], Nr: nr[0]}
		l.m.Clocks = append(l.m.Clocks, parts[1])

	case "const":
		v, ok := l.ints([]string{rest})
		if !ok {
			return l.fail("malformed const " + strconv.Quote(text))
		}
		cell = ConstCell{Value: v[0]}

	case "var", "meta":
		parts := strings.SplitN(rest, ":", 5)
		if len(parts) != 5 || !validName(parts[4]) {
			return l.fail("malformed " + fields[1] + " " + strconv.Quote(text))
		}
		v, ok := l.ints(parts[:4])
		if !ok {
			return l.fail("malformed " + fields[1] + " " + strconv.Quote(text))
		}
		if fields[1] == "var" {
			cell = VarCell{Name: parts[4], Min: v[0], Max: v[1], Init: v[2], Nr: v[3]}
		} else {
			cell = MetaCell{Name: parts[4], Min: v[0], Max: v[1], Init: v[2], Nr: v[3]}
		}
		l.m.Variables = append(l.m.Variables, parts[4])

	case "location":
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 || !validName(parts[1]) {
			return l.fail("malformed location " + strconv.Quote(text))
		}
		var flags LocationFlags
		switch parts[0] {
		case "":
			flags = FlagNone
		case "committed":
			flags = FlagCommitted
		case "urgent":
			flags = FlagUrgent
		default:
			return l.fail("unknown location flag " + strconv.Quote(parts[0]))
		}
		cell = &LocationCell{Name: parts[1], Flags: flags, Process: -1, Invariant: -1}

	case "static":
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) != 3 || !validName(parts[2]) {
			return l.fail("malformed static " + strconv.Quote(text))
		}
		v, ok := l.ints(parts[:2])
		if !ok {
			return l.fail("malformed static " + strconv.Quote(text))
		}
		cell = FixedCell{Name: parts[2], Min: v[0], Max: v[1]}

	case "cost":
		cell = CostCell{}

	default:
		return l.fail("unknown layout entry " + strconv.Quote(text))
	}

	l.m.Layout = append(l.m.Layout, cell)
	return nil
}

// parseInstruction handles "address:v1 v2 v3 v4".
func (l *loader) parseInstruction(text string) error {
	addr, body, ok := strings.Cut(text, ":")
	if !ok {
		return l.fail("malformed instruction")
	}
	if _, err := strconv.Atoi(strings.TrimSpace(addr)); err != nil {
		return l.fail("malformed instruction address")
	}
	words := strings.Fields(body)
	if len(words) == 0 || len(words) > 4 {
		return l.fail("malformed instruction")
	}
	values, ok := l.ints(words)
	if !ok {
		return l.fail("malformed instruction")
	}
	l.m.Instructions = append(l.m.Instructions, values...)
	return nil
}

// parseProcess handles "index:initial:name".
func (l *loader) parseProcess(text string) error {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) != 3 || !validName(parts[2]) {
		return l.fail("malformed process " + strconv.Quote(text))
	}
	v, ok := l.ints(parts[:2])
	if !ok {
		return l.fail("malformed process " + strconv.Quote(text))
	}
	l.m.Processes = append(l.m.Processes, Process{Name: parts[2], Initial: v[1]})
	return nil
}

// parseLocation handles "index:process:invariant".
func (l *loader) parseLocation(text string) error {
	v, ok := l.ints(strings.Split(text, ":"))
	if !ok || len(v) != 3 {
		return l.fail("malformed location record " + strconv.Quote(text))
	}
	idx, process, invariant := v[0], v[1], v[2]

	if process < 0 || process >= len(l.m.Processes) {
		return l.fail(fmt.Sprintf("location %d refers to unknown process %d", idx, process))
	}
	loc, err := l.m.Location(idx)
	if err != nil {
		return l.fail(fmt.Sprintf("location record refers to layout index %d which is not a location", idx))
	}

	loc.Process = process
	loc.Invariant = invariant
	l.m.Processes[process].Locations = append(l.m.Processes[process].Locations, idx)
	return nil
}

// parseEdge handles "process:source:target:guard:sync:update".
func (l *loader) parseEdge(text string) error {
	v, ok := l.ints(strings.Split(text, ":"))
	if !ok || len(v) != 6 {
		return l.fail("malformed edge " + strconv.Quote(text))
	}
	edge := Edge{Process: v[0], Source: v[1], Target: v[2], Guard: v[3], Sync: v[4], Update: v[5]}

	if edge.Process < 0 || edge.Process >= len(l.m.Processes) {
		return l.fail(fmt.Sprintf("edge refers to unknown process %d", edge.Process))
	}
	if _, err := l.m.Location(edge.Source); err != nil {
		return l.fail(fmt.Sprintf("edge source %d is not a location", edge.Source))
	}
	if _, err := l.m.Location(edge.Target); err != nil {
		return l.fail(fmt.Sprintf("edge target %d is not a location", edge.Target))
	}

	l.m.Processes[edge.Process].Edges = append(l.m.Processes[edge.Process].Edges, len(l.m.Edges))
	l.m.Edges = append(l.m.Edges, edge)
	return nil
}

// parseExpression handles "id:a:b:text". The text starts after the third
// colon and is trimmed.
func (l *loader) parseExpression(text string) error {
	parts := strings.SplitN(text, ":", 4)
	if len(parts) != 4 {
		return l.fail("malformed expression " + strconv.Quote(text))
	}
	id, ok := l.ints(parts[:1])
	if !ok {
		return l.fail("malformed expression id " + strconv.Quote(parts[0]))
	}
	l.m.Expressions[id[0]] = strings.TrimSpace(parts[3])
	return nil
}

// ints converts every field to an int.
func (l *loader) ints(fields []string) ([]int, bool) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// validName reports whether s is a single non-empty word.
func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, " \t")
}
