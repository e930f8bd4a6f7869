// Package uppaal reads UPPAAL models in the intermediate format and
// symbolic traces in the XTR format, and reconstructs concrete clock
// values from the zones recorded in a trace.
//
// The intermediate format numbers clocks, variables and locations
// globally. The XTR format uses process-local numbering for locations
// and edges, so every lookup from a trace goes through the owning
// Process.
package uppaal

import cerrors "github.com/logflow/uppaal2octopus/pkg/errors"

// LocationFlags marks committed and urgent locations.
type LocationFlags uint8

const (
	FlagNone LocationFlags = iota
	FlagCommitted
	FlagUrgent
)

// String returns the flag keyword used by the layout section.
func (f LocationFlags) String() string {
	switch f {
	case FlagCommitted:
		return "committed"
	case FlagUrgent:
		return "urgent"
	default:
		return ""
	}
}

// Cell is one memory slot of the model layout. The concrete types are
// ConstCell, ClockCell, VarCell, MetaCell, LocationCell, FixedCell and
// CostCell.
type Cell interface {
	// CellName returns the declared name, empty for unnamed cells.
	CellName() string

	cell()
}

// ConstCell holds a constant.
type ConstCell struct {
	Value int
}

// ClockCell declares a clock.
type ClockCell struct {
	Name string
	Nr   int
}

// VarCell declares a bounded integer variable.
type VarCell struct {
	Name           string
	Min, Max, Init int
	Nr             int
}

// MetaCell declares a meta variable. It occupies a variable slot like VarCell.
type MetaCell struct {
	Name           string
	Min, Max, Init int
	Nr             int
}

// LocationCell declares a location. Process and Invariant are filled in
// by the locations section; Process is -1 until then.
type LocationCell struct {
	Name      string
	Flags     LocationFlags
	Process   int
	Invariant int
}

// FixedCell declares a static (fixed range) slot.
type FixedCell struct {
	Name     string
	Min, Max int
}

// CostCell declares the cost variable.
type CostCell struct{}

func (ConstCell) CellName() string { return "" }
func (c ClockCell) CellName() string { return c.Name }
func (c VarCell) CellName() string { return c.Name }
func (c MetaCell) CellName() string { return c.Name }
func (c *LocationCell) CellName() string { return c.Name }
func (c FixedCell) CellName() string { return c.Name }
func (CostCell) CellName() string { return "" }

func (ConstCell) cell() {}
func (ClockCell) cell() {}
func (VarCell) cell() {}
func (MetaCell) cell() {}
func (*LocationCell) cell() {}
func (FixedCell) cell() {}
func (CostCell) cell() {}

// Process is a process (template instance) of the model.
type Process struct {
	Name    string
	Initial int

	// Locations holds layout indices, in declaration order. A local
	// location number from a trace indexes this slice.
	Locations []int

	// Edges holds indices into Model.Edges, in declaration order. A
	// local edge ordinal from a trace indexes this slice.
	Edges []int
}

// Edge is an edge of a process. Source and Target are layout indices.
// Guard, Sync and Update index Model.Expressions and are not interpreted.
type Edge struct {
	Process int
	Source  int
	Target  int
	Guard   int
	Sync    int
	Update  int
}

// Model is a UPPAAL model in intermediate format. It is immutable once
// LoadModel returns.
type Model struct {
	Layout       []Cell
	Instructions []int
	Processes    []Process
	Edges        []Edge
	Expressions  map[int]string

	// Clocks and Variables map clock and variable indices to names, in
	// the order the cells were declared.
	Clocks    []string
	Variables []string
}

// FindClock returns the index of the clock with the given name.
func (m *Model) FindClock(name string) (int, error) {
	for i, c := range m.Clocks {
		if c == name {
			return i, nil
		}
	}
	return 0, cerrors.MissingClock("model", name)
}

// Location returns the location cell at layout index idx.
func (m *Model) Location(idx int) (*LocationCell, error) {
	if idx < 0 || idx >= len(m.Layout) {
		return nil, cerrors.Formatf("model", "layout index %d out of range", idx)
	}
	loc, ok := m.Layout[idx].(*LocationCell)
	if !ok {
		return nil, cerrors.Formatf("model", "layout index %d is not a location", idx)
	}
	return loc, nil
}

// LocalLocation resolves the process-local location number used by
// traces to its location cell.
func (m *Model) LocalLocation(process, local int) (*LocationCell, error) {
	if process < 0 || process >= len(m.Processes) {
		return nil, cerrors.Formatf("model", "process %d out of range", process)
	}
	p := &m.Processes[process]
	if local < 0 || local >= len(p.Locations) {
		return nil, cerrors.Formatf("model", "process %s has no location %d", p.Name, local)
	}
	return m.Location(p.Locations[local])
}

// LocalEdge resolves the process-local, 0-based edge ordinal used by
// traces to the edge.
func (m *Model) LocalEdge(process, ordinal int) (*Edge, error) {
	if process < 0 || process >= len(m.Processes) {
		return nil, cerrors.Formatf("model", "process %d out of range", process)
	}
	p := &m.Processes[process]
	if ordinal < 0 || ordinal >= len(p.Edges) {
		return nil, cerrors.Formatf("model", "process %s has no edge %d", p.Name, ordinal+1)
	}
	return &m.Edges[p.Edges[ordinal]], nil
}
