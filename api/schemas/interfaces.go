package schemas

import "context"

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a
// preference for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text
// generation process of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest encapsulates a complete request to the LLM, including
// the system and user prompts, the desired model tier, and generation
// options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider.
// Implementations perform a single attempt per call and classify failures
// via the BackendError taxonomy; retrying is the caller's concern.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// -- Transform Collaborator Interface --

// TransformCollaborator is the external generative capability the
// pipeline consumes. All methods are pure requests to a remote service:
// effect-free on failure and therefore safe to retry.
type TransformCollaborator interface {
	// Analyze produces the opaque whole-input migration plan.
	Analyze(ctx context.Context, inputText string) (string, error)
	// Decompose partitions the input into an ordered list of named units.
	// The pipeline trusts the partitioning contract and does not
	// re-validate it; an empty result is handled by the caller.
	Decompose(ctx context.Context, inputText string) ([]UnitSpec, error)
	// Transform produces target-language source plus metadata for a unit.
	Transform(ctx context.Context, unit *Unit) (*TransformResult, error)
	// GenerateTests produces a test script for the candidate.
	GenerateTests(ctx context.Context, candidateText, sourceText string) (string, error)
	// Heal proposes a revised candidate given the failing outcomes of the
	// last validation run.
	Heal(ctx context.Context, unit *Unit, candidateText, testScript string, failures []TestOutcome) (string, error)
}

// -- Validation Interface --

// Validator runs a candidate implementation against its test script in an
// isolated sandbox. Implementations never return an error: every failure
// mode, including sandbox bootstrap problems, is represented as outcome
// data so the healing loop can react to it uniformly.
type Validator interface {
	Run(ctx context.Context, candidateText, testScript string) []TestOutcome
}

// -- Store Interface --

// Store persists completed migration sessions. The pipeline itself never
// writes; persistence happens at the composition root after a run.
type Store interface {
	// PersistSession saves a terminal session with all units and outcomes.
	PersistSession(ctx context.Context, session *Session) error
	// GetSession retrieves a previously persisted session by ID.
	GetSession(ctx context.Context, id string) (*Session, error)
}

// -- Event Sink --

// EventSink receives pipeline events. Emission must never block the
// pipeline: implementations drop or buffer as they see fit.
type EventSink interface {
	Emit(ev PipelineEvent)
}
