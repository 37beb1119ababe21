// File: internal/reporting/markdown_reporter.go

package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// MarkdownReporter renders a session as a human-readable Markdown report:
// a session summary, a per-unit table, and the migrated code per unit.
type MarkdownReporter struct {
	writer io.WriteCloser
}

// NewMarkdownReporter takes ownership of the writer.
func NewMarkdownReporter(writer io.WriteCloser) *MarkdownReporter {
	return &MarkdownReporter{writer: writer}
}

// Write renders the session.
func (r *MarkdownReporter) Write(session *schemas.Session) error {
	if session == nil {
		return fmt.Errorf("session must not be nil")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Migration Report\n\n")
	fmt.Fprintf(&b, "- **Session:** %s\n", session.ID)
	fmt.Fprintf(&b, "- **Status:** %s\n", session.Status)
	fmt.Fprintf(&b, "- **Units:** %d\n", len(session.Units))
	fmt.Fprintf(&b, "- **Verified:** %t\n", session.Verified())
	fmt.Fprintf(&b, "- **Source lines processed:** %d of %d\n",
		session.ProcessedSourceLines, session.TotalSourceLines)
	if !session.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "- **Duration:** %s\n", session.FinishedAt.Sub(session.StartedAt).Round(time.Millisecond))
	}
	if session.Err != "" {
		fmt.Fprintf(&b, "- **Error:** %s\n", session.Err)
	}

	if session.OverallPlan != "" {
		fmt.Fprintf(&b, "\n## Migration Plan\n\n%s\n", session.OverallPlan)
	}

	if len(session.Units) > 0 {
		b.WriteString("\n## Units\n\n")
		b.WriteString("| # | Unit | Status | Verified | Healing Attempts | Tests | Failures |\n")
		b.WriteString("|---|------|--------|----------|------------------|-------|----------|\n")
		for i, u := range session.Units {
			fmt.Fprintf(&b, "| %d | %s | %s | %t | %d | %d | %d |\n",
				i+1, u.Name, u.Status, u.Verified, u.HealingAttempts,
				len(u.TestResults), schemas.CountFailures(u.TestResults))
		}
	}

	for _, u := range session.Units {
		fmt.Fprintf(&b, "\n## Unit: %s\n\n", u.Name)
		if u.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", u.Summary)
		}
		if u.Err != "" {
			fmt.Fprintf(&b, "**Failed:** %s\n\n", u.Err)
		}
		if len(u.FieldMappings) > 0 {
			b.WriteString("**Field mappings:**\n\n")
			for _, legacy := range sortedKeys(u.FieldMappings) {
				fmt.Fprintf(&b, "- `%s` -> `%s`\n", legacy, u.FieldMappings[legacy])
			}
			b.WriteString("\n")
		}
		for _, o := range schemas.FailedOutcomes(u.TestResults) {
			fmt.Fprintf(&b, "- **%s failed:** %s\n", o.Name, o.Message)
		}
		if u.CandidateText != "" {
			fmt.Fprintf(&b, "\n```javascript\n%s\n```\n", strings.TrimRight(u.CandidateText, "\n"))
		}
	}

	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (r *MarkdownReporter) Close() error {
	return r.writer.Close()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
