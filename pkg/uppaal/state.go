package uppaal

// State is a symbolic state: a location vector, a variable vector and a
// zone describing the possible clock values.
type State struct {
	// Locations holds the process-local location number per process.
	Locations []int

	// Integers holds the value per declared variable.
	Integers []int

	// Zone holds the clock constraints.
	Zone *DBM
}

// NewState allocates a state sized for m.
func NewState(m *Model) *State {
	return &State{
		Locations: make([]int, len(m.Processes)),
		Integers:  make([]int, len(m.Variables)),
		Zone:      NewDBM(len(m.Clocks)),
	}
}

// noEdge marks a process that did not move in a transition.
const noEdge = -1

// Transition holds, per process, the 0-based local edge ordinal taken,
// or -1 when the process did not move.
type Transition struct {
	Edges []int
}

// NewTransition allocates a transition in which no process moves.
func NewTransition(m *Model) *Transition {
	t := &Transition{Edges: make([]int, len(m.Processes))}
	for i := range t.Edges {
		t.Edges[i] = noEdge
	}
	return t
}

// Edge returns the local edge ordinal process p took, if any.
func (t *Transition) Edge(p int) (int, bool) {
	if p < 0 || p >= len(t.Edges) || t.Edges[p] == noEdge {
		return 0, false
	}
	return t.Edges[p], true
}
