package schemas

import "time"

// -- Unit Schemas --

// UnitStatus represents the lifecycle state of a single migration unit.
type UnitStatus string

const (
	// UnitPending is the only non-terminal unit status.
	UnitPending UnitStatus = "pending"
	// UnitDone means the unit completed all processing steps; residual test
	// failures are surfaced through TestResults and Verified, not here.
	UnitDone UnitStatus = "done"
	// UnitError means a fatal backend error aborted the unit's processing.
	UnitError UnitStatus = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s UnitStatus) Terminal() bool { return s == UnitDone || s == UnitError }

// Unit is one independently transformable and testable slice of the
// original input. Units are created in bulk by decomposition and mutated
// in place by the orchestrator only; they are never created afterwards
// and never deleted.
type Unit struct {
	// ID is stable from decomposition on and never reused.
	ID string `json:"id"`
	// Name is the human label assigned by the decomposition collaborator.
	// Uniqueness is desirable but not enforced.
	Name string `json:"name"`
	// SourceText is this unit's slice of the original input. Immutable
	// after decomposition.
	SourceText string `json:"source_text"`
	// CandidateText is the current best transformed output. Empty until the
	// transform step completes; overwritten by each healing revision.
	CandidateText string `json:"candidate_text,omitempty"`
	// TestScript is generated once per unit and never regenerated during
	// healing.
	TestScript string `json:"test_script,omitempty"`
	// Summary and FieldMappings are opaque transform metadata passed
	// through to reporting.
	Summary       string            `json:"summary,omitempty"`
	FieldMappings map[string]string `json:"field_mappings,omitempty"`
	// HealingAttempts counts healing revisions applied so far. Never
	// exceeds the configured maximum.
	HealingAttempts int `json:"healing_attempts"`
	// TestResults holds the outcomes of the most recent validation run.
	// Replaced, not appended, on each run.
	TestResults []TestOutcome `json:"test_results,omitempty"`
	// Status is the unit lifecycle state.
	Status UnitStatus `json:"status"`
	// Verified records whether the final validation run had zero failures.
	// Kept separate from Status: a unit finalizes Done even when the
	// healing budget ran out with failures remaining.
	Verified bool `json:"verified"`
	// Err carries the fatal error text when Status is UnitError.
	Err string `json:"error,omitempty"`
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	if u == nil {
		return nil
	}
	out := *u
	if u.TestResults != nil {
		out.TestResults = append([]TestOutcome(nil), u.TestResults...)
	}
	if u.FieldMappings != nil {
		out.FieldMappings = make(map[string]string, len(u.FieldMappings))
		for k, v := range u.FieldMappings {
			out.FieldMappings[k] = v
		}
	}
	return &out
}

// SourceLines returns the line count of the unit's source slice, used for
// progress accounting.
func (u *Unit) SourceLines() int {
	if u.SourceText == "" {
		return 0
	}
	n := 1
	for _, r := range u.SourceText {
		if r == '\n' {
			n++
		}
	}
	return n
}

// -- Test Outcome Schemas --

// TestStatus is the pass/fail state of one executed test.
type TestStatus string

const (
	TestPassed TestStatus = "passed"
	TestFailed TestStatus = "failed"
)

// TestOutcome is the structured result of executing one discovered test
// (or one synthetic bootstrap failure) inside the validation sandbox.
type TestOutcome struct {
	// Name is the discovered test function name, or a synthetic marker such
	// as "candidate_bootstrap" when the candidate failed to load.
	Name   string     `json:"name"`
	Status TestStatus `json:"status"`
	// Message carries the exception/traceback text. Required when Status is
	// TestFailed, empty otherwise.
	Message string `json:"message,omitempty"`
	// Duration is best-effort wall-clock timing reported by the sandbox.
	// Not authoritative; comparisons between runs should ignore it.
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the outcome is a failure.
func (o TestOutcome) Failed() bool { return o.Status == TestFailed }

// CountFailures returns the number of failed outcomes in a run.
func CountFailures(outcomes []TestOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// FailedOutcomes filters a run down to its failures, preserving order.
func FailedOutcomes(outcomes []TestOutcome) []TestOutcome {
	var out []TestOutcome
	for _, o := range outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// UnitSpec is one entry of a decomposition result: the collaborator's
// proposed partitioning of the input, before IDs are assigned.
type UnitSpec struct {
	Name       string `json:"name"`
	SourceText string `json:"source_text"`
}

// TransformResult is the payload produced by the transform operation.
type TransformResult struct {
	// CandidateText is the transformed target-language source.
	CandidateText string `json:"candidate_text"`
	// Summary is a business-rule summary of what the unit does.
	Summary string `json:"summary,omitempty"`
	// FieldMappings maps legacy identifiers to their modern counterparts.
	FieldMappings map[string]string `json:"field_mappings,omitempty"`
}
