// Package model defines core data structures for uppaal2octopus.
package model

// Scenario is the constant scenario name carried by every emitted event.
const Scenario = "UPPAALtrace"

// Location identifies a location of one process, e.g. Train.Cross.
type Location struct {
	// Process is the process (template instance) name.
	Process string

	// Name is the location name inside the process.
	Name string
}

// String returns the dotted "<process>.<name>" form.
func (l Location) String() string {
	return l.Process + "." + l.Name
}

// Indicator tells whether an event or fact opens or closes an interval.
type Indicator uint8

const (
	Start Indicator = iota
	End
)

// String returns "start" or "end".
func (i Indicator) String() string {
	switch i {
	case Start:
		return "start"
	case End:
		return "end"
	default:
		return "unknown"
	}
}

// Fact is the common output of both trace decoders: a process entered
// (Start) or left (End) a location at a given clock value.
type Fact struct {
	Location  Location
	Clock     uint32
	Indicator Indicator
}

// Event represents a single Octopus event. Field order matches the
// serialized record: jobId, pageNumber, scenario, resource, eventId,
// startEnd, timeStamp, label.
type Event struct {
	// JobID carries the synthesized "<locationId>:<process>.<location>" text.
	// UPPAAL has no notion of jobs, so the location label is used instead.
	JobID string

	// PageNumber carries the synthesized location id.
	PageNumber uint32

	// Scenario is always the Scenario constant.
	Scenario string

	// Resource is the process name.
	Resource string

	// EventID pairs a start event with its end event.
	EventID uint32

	// Indicator is Start or End.
	Indicator Indicator

	// Timestamp is the concrete value of the active clock.
	Timestamp uint32

	// Label is the same text as JobID.
	Label string
}
