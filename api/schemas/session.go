package schemas

import "time"

// -- Session Schemas --

// SessionStatus represents the lifecycle state of a migration session.
type SessionStatus string

const (
	// SessionIdle means the session has been created but not started.
	SessionIdle SessionStatus = "idle"
	// SessionAnalyzing means the whole-input analysis and decomposition
	// stage is in flight.
	SessionAnalyzing SessionStatus = "analyzing"
	// SessionProcessing means units exist and at least one is non-terminal.
	SessionProcessing SessionStatus = "processing"
	// SessionCompleted is terminal: every unit reached a terminal status.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed is terminal: the analysis/decomposition stage could not
	// produce a non-empty unit list after retries were exhausted.
	SessionFailed SessionStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// Valid reports whether the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionIdle, SessionAnalyzing, SessionProcessing, SessionCompleted, SessionFailed:
		return true
	default:
		return false
	}
}

// NoCurrentUnit is the CurrentIndex sentinel meaning processing has not
// started (or no unit is in flight).
const NoCurrentUnit = -1

// Session is the top-level state of one migration run. It is owned and
// mutated exclusively by the pipeline orchestrator; everyone else sees
// read-only snapshots.
type Session struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`
	// Status is the lifecycle state. Processing holds iff CurrentIndex
	// points at a non-terminal unit.
	Status SessionStatus `json:"status"`
	// OverallPlan is the opaque analysis artifact produced once, before
	// decomposition. Consumed by the surrounding application only.
	OverallPlan string `json:"overall_plan,omitempty"`
	// Units is the ordered, fixed unit list produced by decomposition.
	// Never reordered, merged, or shrunk after decomposition succeeds.
	Units []*Unit `json:"units"`
	// CurrentIndex is the index of the unit being processed, or
	// NoCurrentUnit. It never decreases and advances by exactly one per
	// finalized unit.
	CurrentIndex int `json:"current_index"`
	// TotalSourceLines and ProcessedSourceLines are monotone counters used
	// for progress reporting only; they drive no control flow.
	TotalSourceLines     int `json:"total_source_lines"`
	ProcessedSourceLines int `json:"processed_source_lines"`
	// StartedAt and FinishedAt bracket the run. FinishedAt is zero until
	// the session reaches a terminal status.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	// Err carries the session-fatal bootstrap error text, if any.
	Err string `json:"error,omitempty"`
}

// Snapshot returns a deep copy safe to hand to consumers while the
// orchestrator keeps mutating the original.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Units = make([]*Unit, len(s.Units))
	for i, u := range s.Units {
		out.Units[i] = u.Clone()
	}
	return &out
}

// UnitAt returns the unit at index i, or nil when i is out of range.
func (s *Session) UnitAt(i int) *Unit {
	if i < 0 || i >= len(s.Units) {
		return nil
	}
	return s.Units[i]
}

// Verified reports whether every unit finished Done with a passing final
// validation run.
func (s *Session) Verified() bool {
	if len(s.Units) == 0 {
		return false
	}
	for _, u := range s.Units {
		if u.Status != UnitDone || !u.Verified {
			return false
		}
	}
	return true
}
