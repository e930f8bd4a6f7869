package uppaal

import cerrors "github.com/logflow/uppaal2octopus/pkg/errors"

// Default clock names: UPPAAL's reference clock and the clock a model
// uses to measure global time.
const (
	DefaultOriginClock = "t(0)"
	DefaultActiveClock = "c"
)

// ClockValue derives the concrete value of the active clock from the
// zone of s.
//
// A trace does not carry a direct origin-active bound in every state, so
// the value is obtained from any chain of recorded constraints linking
// the two clocks: with (i, j) bounding x_i - x_j, the bounds along a
// path from the origin to the active clock sum to -value.
func ClockValue(m *Model, s *State, origin, active string) (uint32, error) {
	from, err := m.FindClock(origin)
	if err != nil {
		return 0, err
	}
	to, err := m.FindClock(active)
	if err != nil {
		return 0, err
	}

	path, err := FindPath(s.Zone.Constraints(), from, to)
	if err != nil {
		return 0, cerrors.NoPath(origin, active)
	}

	var result int64
	for _, a := range path {
		result -= int64(s.Zone.At(a.From, a.To).Value)
	}

	if result < 0 {
		return 0, cerrors.Formatf("clock", "negative value %d for clock %s", result, active)
	}
	return uint32(result), nil
}
