package schemas

import "time"

// -- Pipeline Event Schemas --

// EventSeverity tags a pipeline event for display purposes. Events are
// purely observational; nothing in the control flow depends on them.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeveritySuccess  EventSeverity = "success"
	SeverityError    EventSeverity = "error"
	SeverityThinking EventSeverity = "thinking"
)

// PipelineStage identifies the major transition an event belongs to.
type PipelineStage string

const (
	StageAnalyze   PipelineStage = "analyze"
	StageDecompose PipelineStage = "decompose"
	StageTransform PipelineStage = "transform"
	StageTests     PipelineStage = "generate_tests"
	StageValidate  PipelineStage = "validate"
	StageHeal      PipelineStage = "heal"
	StageFinalize  PipelineStage = "finalize"
	StageSession   PipelineStage = "session"
)

// PipelineEvent is one human-readable entry in the observable event
// stream emitted at each major transition. Unit-scoped events carry the
// unit's identity so unit-level failures remain distinguishable from
// session-level failures.
type PipelineEvent struct {
	Severity EventSeverity `json:"severity"`
	Stage    PipelineStage `json:"stage"`
	// SessionID is always set; UnitID and UnitName only on unit-scoped
	// events.
	SessionID string `json:"session_id"`
	UnitID    string `json:"unit_id,omitempty"`
	UnitName  string `json:"unit_name,omitempty"`
	// Attempt is the healing attempt number for heal/validate events.
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message"`
	Err     string `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// SessionScoped reports whether the event concerns the whole session
// rather than a single unit.
func (e PipelineEvent) SessionScoped() bool { return e.UnitID == "" }
