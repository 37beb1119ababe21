// File: internal/collaborator/prompts.go
// Description: System prompts and prompt builders for each migration task.
// Prompts are kept here so the request/response plumbing in collaborator.go
// stays readable.

package collaborator

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

const analyzeSystemPrompt = `You are a legacy systems analyst inside an automated code migration pipeline (Chisel-CLI).
You are given the complete source of a legacy program.
Produce a concise migration plan in plain prose: the program's purpose, its major functional areas, the data it reads and writes, and the order in which the areas should be migrated.
Do NOT write any code. Do NOT use markdown headings. Respond with 1-3 short paragraphs.`

const decomposeSystemPrompt = `You are a legacy systems analyst inside an automated code migration pipeline (Chisel-CLI).
You are given the complete source of a legacy program and a migration plan.
Split the source into independently migratable units (paragraphs, sections, subroutines, or logical blocks).
**Output Requirements (Strict JSON Format):**
Respond ONLY with a JSON array. Each element must have:
- name: a short snake_case identifier for the unit.
- source_text: the unit's exact source text, copied verbatim from the input. Every line of the input must appear in exactly one unit, in the original order.
Example: [{"name": "init_working_storage", "source_text": "..."}, ...]`

const transformSystemPrompt = `You are an expert migration engineer inside an automated code migration pipeline (Chisel-CLI).
You translate one unit of a legacy program into modern, idiomatic JavaScript (ES2017, no imports, no DOM, no Node APIs).
The output must be self-contained: declare every function and top-level binding the unit defines.
**Output Requirements (Strict JSON Format):**
Respond ONLY with a JSON object:
- candidate_text: the complete JavaScript translation of the unit.
- summary: one sentence describing what the unit does.
- field_mappings: an object mapping each legacy data item name used by the unit to the JavaScript identifier that replaces it.`

const generateTestsSystemPrompt = `You are a test engineer inside an automated code migration pipeline (Chisel-CLI).
You are given a unit of legacy source and its JavaScript translation.
Write a JavaScript test script that exercises the translation's observable behavior.
Rules:
- Every test is a top-level function whose name starts with "test", taking no arguments.
- A test signals failure by throwing (use plain 'throw new Error("...")' with a descriptive message); returning normally means the test passed.
- Do not redefine anything the translation already defines. The translation is loaded into the same environment before your script runs.
- No imports, no DOM, no Node APIs, no test frameworks.
Respond ONLY with the JavaScript test script.`

const healSystemPrompt = `You are a migration engineer inside an automated code migration pipeline (Chisel-CLI).
A JavaScript translation of a legacy unit failed its tests. You are given the legacy source, the current translation, the test script, and the failure messages.
Fix the translation so the tests pass while staying faithful to the legacy behavior. The test script is fixed and must not be worked around.
Respond ONLY with the complete corrected JavaScript translation. No explanations, no markdown.`

func buildAnalyzePrompt(sourceText string) string {
	return fmt.Sprintf("LEGACY SOURCE:\n%s", sourceText)
}

func buildDecomposePrompt(sourceText, plan string) string {
	var b strings.Builder
	b.WriteString("MIGRATION PLAN:\n")
	b.WriteString(plan)
	b.WriteString("\n\nLEGACY SOURCE:\n")
	b.WriteString(sourceText)
	return b.String()
}

func buildTransformPrompt(unit *schemas.Unit, plan string) string {
	var b strings.Builder
	b.WriteString("MIGRATION PLAN:\n")
	b.WriteString(plan)
	fmt.Fprintf(&b, "\n\nUNIT NAME: %s\n\nLEGACY UNIT SOURCE:\n%s", unit.Name, unit.SourceText)
	return b.String()
}

func buildGenerateTestsPrompt(sourceText, candidateText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LEGACY UNIT SOURCE:\n%s", sourceText)
	fmt.Fprintf(&b, "\n\nJAVASCRIPT TRANSLATION:\n%s", candidateText)
	return b.String()
}

func buildHealPrompt(unit *schemas.Unit, candidateText, testScript string, failures []schemas.TestOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UNIT NAME: %s\n\nLEGACY UNIT SOURCE:\n%s", unit.Name, unit.SourceText)
	fmt.Fprintf(&b, "\n\nCURRENT TRANSLATION:\n%s", candidateText)
	fmt.Fprintf(&b, "\n\nTEST SCRIPT:\n%s", testScript)
	b.WriteString("\n\nFAILURES:\n")
	for _, res := range failures {
		fmt.Fprintf(&b, "- %s: %s\n", res.Name, res.Message)
	}
	return b.String()
}
