package collaborator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// mockLLMClient replays canned responses and records the requests it saw.
type mockLLMClient struct {
	responses []string
	err       error
	requests  []schemas.GenerationRequest
}

func (m *mockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	idx := len(m.requests) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return m.responses[idx], nil
}

func (m *mockLLMClient) Close() error { return nil }

func newTestCollaborator(t *testing.T, client *mockLLMClient) *Collaborator {
	t.Helper()
	c, err := New(client, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, zap.NewNop())
	assert.Error(t, err)
}

func TestAnalyze_ReturnsTrimmedPlanOnPowerfulTier(t *testing.T) {
	client := &mockLLMClient{responses: []string{"  The program computes payroll.  \n"}}
	c := newTestCollaborator(t, client)

	plan, err := c.Analyze(context.Background(), "LEGACY CODE")

	require.NoError(t, err)
	assert.Equal(t, "The program computes payroll.", plan)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, schemas.TierPowerful, req.Tier)
	assert.Contains(t, req.UserPrompt, "LEGACY CODE")
	assert.False(t, req.Options.ForceJSONFormat)
}

// The plan produced by Analyze ends up in subsequent prompts.
func TestDecompose_IncludesPlanAndParsesUnits(t *testing.T) {
	client := &mockLLMClient{responses: []string{
		"the plan",
		`[{"name": "init_section", "source_text": "INIT."}, {"name": "main_loop", "source_text": "LOOP."}]`,
	}}
	c := newTestCollaborator(t, client)

	_, err := c.Analyze(context.Background(), "SRC")
	require.NoError(t, err)

	specs, err := c.Decompose(context.Background(), "SRC")
	require.NoError(t, err)

	require.Len(t, specs, 2)
	assert.Equal(t, "init_section", specs[0].Name)
	assert.Equal(t, "INIT.", specs[0].SourceText)
	assert.Equal(t, "main_loop", specs[1].Name)

	req := client.requests[1]
	assert.True(t, req.Options.ForceJSONFormat)
	assert.Contains(t, req.UserPrompt, "the plan")
}

// Markdown-wrapped JSON is tolerated.
func TestDecompose_HandlesMarkdownWrappedJSON(t *testing.T) {
	client := &mockLLMClient{responses: []string{
		"```json\n[{\"name\": \"only_unit\", \"source_text\": \"ALL.\"}]\n```",
	}}
	c := newTestCollaborator(t, client)

	specs, err := c.Decompose(context.Background(), "SRC")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "only_unit", specs[0].Name)
}

// A payload that cannot be parsed is a fatal backend error, not transient.
func TestDecompose_MalformedPayloadIsFatal(t *testing.T) {
	client := &mockLLMClient{responses: []string{"I could not split this program, sorry!"}}
	c := newTestCollaborator(t, client)

	_, err := c.Decompose(context.Background(), "SRC")

	require.Error(t, err)
	var be *schemas.BackendError
	require.ErrorAs(t, err, &be)
	assert.False(t, be.Transient)
	assert.Equal(t, "decompose", be.Op)
}

func TestTransform_ParsesResultAndStripsMarkdown(t *testing.T) {
	client := &mockLLMClient{responses: []string{
		`{"candidate_text": "` + "```javascript\\nfunction initSection() {}\\n```" + `", "summary": "Initializes state.", "field_mappings": {"WS-TOTAL": "total"}}`,
	}}
	c := newTestCollaborator(t, client)

	unit := &schemas.Unit{Name: "init_section", SourceText: "INIT."}
	result, err := c.Transform(context.Background(), unit)

	require.NoError(t, err)
	assert.Equal(t, "function initSection() {}", result.CandidateText)
	assert.Equal(t, "Initializes state.", result.Summary)
	assert.Equal(t, map[string]string{"WS-TOTAL": "total"}, result.FieldMappings)

	req := client.requests[0]
	assert.Equal(t, schemas.TierPowerful, req.Tier)
	assert.True(t, req.Options.ForceJSONFormat)
}

func TestTransform_EmptyCandidateIsFatal(t *testing.T) {
	client := &mockLLMClient{responses: []string{`{"candidate_text": "   ", "summary": "nothing"}`}}
	c := newTestCollaborator(t, client)

	_, err := c.Transform(context.Background(), &schemas.Unit{Name: "u"})

	require.Error(t, err)
	assert.False(t, schemas.IsTransient(err))
}

func TestGenerateTests_UsesFastTierAndCleansOutput(t *testing.T) {
	client := &mockLLMClient{responses: []string{
		"```js\nfunction testInit() { if (1 !== 1) throw new Error('broken'); }\n```",
	}}
	c := newTestCollaborator(t, client)

	script, err := c.GenerateTests(context.Background(), "function initSection() {}", "INIT.")

	require.NoError(t, err)
	assert.Equal(t, "function testInit() { if (1 !== 1) throw new Error('broken'); }", script)

	req := client.requests[0]
	assert.Equal(t, schemas.TierFast, req.Tier)
	assert.Contains(t, req.UserPrompt, "function initSection() {}")
	assert.Contains(t, req.UserPrompt, "INIT.")
}

func TestHeal_IncludesFailuresInPrompt(t *testing.T) {
	client := &mockLLMClient{responses: []string{"function initSection() { return 1; }"}}
	c := newTestCollaborator(t, client)

	unit := &schemas.Unit{Name: "init_section", SourceText: "INIT."}
	failures := []schemas.TestOutcome{
		{Name: "testInit", Status: schemas.TestFailed, Message: "Error: expected 1, got undefined"},
	}

	revised, err := c.Heal(context.Background(), unit, "function initSection() {}", "function testInit() {}", failures)

	require.NoError(t, err)
	assert.Equal(t, "function initSection() { return 1; }", revised)

	req := client.requests[0]
	assert.Equal(t, schemas.TierFast, req.Tier)
	assert.Contains(t, req.UserPrompt, "testInit")
	assert.Contains(t, req.UserPrompt, "expected 1, got undefined")
	assert.Contains(t, req.UserPrompt, "function initSection() {}")
}

// Backend errors pass through wrapped, preserving classification.
func TestCollaborator_PropagatesBackendErrors(t *testing.T) {
	client := &mockLLMClient{err: schemas.NewTransientBackendError("generate", fmt.Errorf("429"))}
	c := newTestCollaborator(t, client)

	_, err := c.Analyze(context.Background(), "SRC")
	require.Error(t, err)
	assert.True(t, schemas.IsTransient(err), "transient classification must survive wrapping")
}
