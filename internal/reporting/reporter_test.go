package reporting

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func reportSession() *schemas.Session {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return &schemas.Session{
		ID:                   "session-abc",
		Status:               schemas.SessionCompleted,
		OverallPlan:          "Port the batch calculator to JavaScript.",
		CurrentIndex:         2,
		TotalSourceLines:     8,
		ProcessedSourceLines: 8,
		StartedAt:            started,
		FinishedAt:           started.Add(42 * time.Second),
		Units: []*schemas.Unit{
			{
				ID:            "unit-1",
				Name:          "calc_total",
				SourceText:    "PERFORM CALC",
				CandidateText: "function calcTotal() { return 5; }\n",
				TestScript:    "function testCalc() {}",
				Summary:       "Sums the line items.",
				FieldMappings: map[string]string{"WS-TOTAL": "total", "WS-COUNT": "count"},
				Status:        schemas.UnitDone,
				Verified:      true,
				TestResults: []schemas.TestOutcome{
					{Name: "testCalc", Status: schemas.TestPassed},
				},
			},
			{
				ID:              "unit-2",
				Name:            "format_report",
				SourceText:      "PERFORM FORMAT",
				CandidateText:   "function formatReport() {}",
				TestScript:      "function testFormat() {}",
				HealingAttempts: 2,
				Status:          schemas.UnitDone,
				TestResults: []schemas.TestOutcome{
					{Name: "testFormat", Status: schemas.TestFailed, Message: "bad padding"},
				},
			},
		},
	}
}

func TestMarkdownReporter_Write(t *testing.T) {
	buf := &bufferCloser{}
	r := NewMarkdownReporter(buf)

	require.NoError(t, r.Write(reportSession()))
	out := buf.String()

	assert.Contains(t, out, "# Migration Report")
	assert.Contains(t, out, "- **Session:** session-abc")
	assert.Contains(t, out, "- **Status:** completed")
	assert.Contains(t, out, "## Migration Plan")
	assert.Contains(t, out, "Port the batch calculator to JavaScript.")

	// Unit table rows.
	assert.Contains(t, out, "| 1 | calc_total | done | true | 0 | 1 | 0 |")
	assert.Contains(t, out, "| 2 | format_report | done | false | 2 | 1 | 1 |")

	// Per-unit sections.
	assert.Contains(t, out, "## Unit: calc_total")
	assert.Contains(t, out, "Sums the line items.")
	assert.Contains(t, out, "- **testFormat failed:** bad padding")
	assert.Contains(t, out, "```javascript\nfunction calcTotal() { return 5; }\n```")

	// Field mappings come out sorted by legacy name.
	countIdx := strings.Index(out, "`WS-COUNT` -> `count`")
	totalIdx := strings.Index(out, "`WS-TOTAL` -> `total`")
	require.Greater(t, countIdx, 0)
	require.Greater(t, totalIdx, 0)
	assert.Less(t, countIdx, totalIdx)
}

func TestMarkdownReporter_FailedSession(t *testing.T) {
	buf := &bufferCloser{}
	r := NewMarkdownReporter(buf)

	session := &schemas.Session{
		ID:           "session-failed",
		Status:       schemas.SessionFailed,
		CurrentIndex: schemas.NoCurrentUnit,
		StartedAt:    time.Now(),
		FinishedAt:   time.Now(),
		Err:          "bootstrap failed during analyze",
	}
	require.NoError(t, r.Write(session))
	out := buf.String()

	assert.Contains(t, out, "- **Status:** failed")
	assert.Contains(t, out, "- **Error:** bootstrap failed during analyze")
	assert.NotContains(t, out, "## Units")
}

func TestMarkdownReporter_NilSession(t *testing.T) {
	r := NewMarkdownReporter(&bufferCloser{})
	assert.Error(t, r.Write(nil))
}

func TestJSONReporter_RoundTrip(t *testing.T) {
	buf := &bufferCloser{}
	r := NewJSONReporter(buf)

	session := reportSession()
	require.NoError(t, r.Write(session))

	var decoded schemas.Session
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	assert.Equal(t, session.ID, decoded.ID)
	assert.Equal(t, session.Status, decoded.Status)
	require.Len(t, decoded.Units, 2)
	assert.Equal(t, "calc_total", decoded.Units[0].Name)
	assert.Equal(t, session.Units[1].TestResults[0].Message, decoded.Units[1].TestResults[0].Message)
}

func TestNew_FormatSelection(t *testing.T) {
	dir := t.TempDir()

	t.Run("markdown to file", func(t *testing.T) {
		path := filepath.Join(dir, "report.md")
		r, err := New("markdown", path)
		require.NoError(t, err)

		require.NoError(t, r.Write(reportSession()))
		require.NoError(t, r.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# Migration Report")
	})

	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(dir, "report.json")
		r, err := New("json", path)
		require.NoError(t, err)

		require.NoError(t, r.Write(reportSession()))
		require.NoError(t, r.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"id": "session-abc"`)
	})

	t.Run("empty format defaults to markdown", func(t *testing.T) {
		r, err := New("", filepath.Join(dir, "default.md"))
		require.NoError(t, err)
		_, ok := r.(*MarkdownReporter)
		assert.True(t, ok)
		require.NoError(t, r.Close())
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := New("xml", filepath.Join(dir, "report.xml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported output format")
	})

	t.Run("stdout path needs no file", func(t *testing.T) {
		r, err := New("markdown", "stdout")
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	})
}

func TestReporter_ClosePropagates(t *testing.T) {
	buf := &bufferCloser{}
	r := NewMarkdownReporter(buf)
	require.NoError(t, r.Close())
	assert.True(t, buf.closed)
}
