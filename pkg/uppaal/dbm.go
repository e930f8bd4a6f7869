package uppaal

import (
	"fmt"
	"strings"
)

// DBM is a difference bound matrix over n clocks stored row-major. The
// entry (i, j) bounds x_i - x_j. Clock 0 is the zero reference.
type DBM struct {
	n        int
	bounds   []Bound
	explicit []bool
}

// NewDBM returns the zone with no recorded constraints: every entry is
// Infinity except the diagonal and the lower bounds (0, i), which are Zero.
func NewDBM(n int) *DBM {
	d := &DBM{
		n:        n,
		bounds:   make([]Bound, n*n),
		explicit: make([]bool, n*n),
	}
	for k := range d.bounds {
		d.bounds[k] = Infinity
	}
	for i := 0; i < n; i++ {
		d.bounds[i*n+i] = Zero
		d.bounds[i] = Zero
	}
	return d
}

// Size returns the number of clocks.
func (d *DBM) Size() int {
	return d.n
}

func (d *DBM) index(i, j int) (int, error) {
	if i < 0 || i >= d.n || j < 0 || j >= d.n {
		return 0, fmt.Errorf("dbm: index (%d,%d) out of range for %d clocks", i, j, d.n)
	}
	return i*d.n + j, nil
}

// At returns the bound on x_i - x_j. It panics on out of range indices.
func (d *DBM) At(i, j int) Bound {
	k, err := d.index(i, j)
	if err != nil {
		panic(err)
	}
	return d.bounds[k]
}

// Set records the bound on x_i - x_j as read from a trace.
func (d *DBM) Set(i, j int, b Bound) error {
	k, err := d.index(i, j)
	if err != nil {
		return err
	}
	d.bounds[k] = b
	d.explicit[k] = true
	return nil
}

// Explicit reports whether (i, j) was recorded by Set rather than defaulted.
func (d *DBM) Explicit(i, j int) bool {
	k, err := d.index(i, j)
	if err != nil {
		return false
	}
	return d.explicit[k]
}

// Constraints returns every recorded finite off-diagonal entry, in
// row-major order.
func (d *DBM) Constraints() []Arc[int] {
	var arcs []Arc[int]
	for i := 0; i < d.n; i++ {
		for j := 0; j < d.n; j++ {
			k := i*d.n + j
			if i != j && d.explicit[k] && !d.bounds[k].IsInfinite() {
				arcs = append(arcs, Arc[int]{From: i, To: j})
			}
		}
	}
	return arcs
}

// String renders the recorded constraints using clock names.
func (d *DBM) String(clocks []string) string {
	var parts []string
	for _, a := range d.Constraints() {
		parts = append(parts, fmt.Sprintf("%s-%s%s", clocks[a.From], clocks[a.To], d.At(a.From, a.To)))
	}
	return strings.Join(parts, ", ")
}
