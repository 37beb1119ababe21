package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/config"
)

func testSandboxConfig() config.SandboxConfig {
	return config.SandboxConfig{
		TestTimeout:     5 * time.Second,
		TestPrefix:      "test",
		MaxConsoleBytes: 4096,
	}
}

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return New(testSandboxConfig(), zap.NewNop())
}

const addCandidate = `
function add(a, b) {
    return a + b;
}
`

// A passing script produces one Passed outcome per discovered test.
func TestRun_AllTestsPass(t *testing.T) {
	exec := newTestExecutor(t)

	script := `
function testAddPositive() {
    if (add(2, 3) !== 5) throw new Error("expected 5");
}
function testAddNegative() {
    if (add(-2, -3) !== -5) throw new Error("expected -5");
}
`
	outcomes := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "testAddPositive", outcomes[0].Name)
	assert.Equal(t, schemas.TestPassed, outcomes[0].Status)
	assert.Empty(t, outcomes[0].Message)
	assert.Equal(t, "testAddNegative", outcomes[1].Name)
	assert.Equal(t, schemas.TestPassed, outcomes[1].Status)
}

// A thrown exception fails that test with the exception text, leaving
// sibling tests unaffected.
func TestRun_FailureCarriesMessage(t *testing.T) {
	exec := newTestExecutor(t)

	script := `
function testBroken() {
    throw new Error("add is wrong: expected 6");
}
function testStillRuns() {
    if (add(1, 1) !== 2) throw new Error("expected 2");
}
`
	outcomes := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, outcomes, 2)
	assert.Equal(t, schemas.TestFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "add is wrong: expected 6")
	assert.Equal(t, schemas.TestPassed, outcomes[1].Status)
}

// A candidate that cannot evaluate yields the synthetic bootstrap outcome
// and nothing else; the executor never raises.
func TestRun_CandidateBootstrapFailure(t *testing.T) {
	exec := newTestExecutor(t)

	outcomes := exec.Run(context.Background(), "function broken( {", "function testNothing() {}")

	require.Len(t, outcomes, 1)
	assert.Equal(t, "candidate_bootstrap", outcomes[0].Name)
	assert.Equal(t, schemas.TestFailed, outcomes[0].Status)
	assert.NotEmpty(t, outcomes[0].Message)
}

// A test script that cannot evaluate yields its own synthetic outcome.
func TestRun_TestScriptBootstrapFailure(t *testing.T) {
	exec := newTestExecutor(t)

	outcomes := exec.Run(context.Background(), addCandidate, "this is not javascript {{{")

	require.Len(t, outcomes, 1)
	assert.Equal(t, "testscript_bootstrap", outcomes[0].Name)
	assert.Equal(t, schemas.TestFailed, outcomes[0].Status)
	assert.NotEmpty(t, outcomes[0].Message)
}

// Only prefixed, callable globals defined by the test script are
// discovered, in definition order.
func TestRun_DiscoveryRules(t *testing.T) {
	exec := newTestExecutor(t)

	// The candidate defines a test-prefixed function of its own; discovery
	// must skip it because it predates the test script.
	candidate := addCandidate + `
function testHelperFromCandidate() { throw new Error("must not run"); }
`
	script := `
var testNotAFunction = 42;
function helperWithoutPrefix() { throw new Error("must not run"); }
function testSecond() {}
function testFirst() {}
`
	outcomes := exec.Run(context.Background(), candidate, script)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "testSecond", outcomes[0].Name, "definition order must be preserved")
	assert.Equal(t, "testFirst", outcomes[1].Name)
}

// Tests share the run's execution context: state set up by one test is
// visible to the next.
func TestRun_SharedContextWithinRun(t *testing.T) {
	exec := newTestExecutor(t)

	script := `
var shared = null;
function testSetup() {
    shared = add(20, 22);
}
function testUsesSetup() {
    if (shared !== 42) throw new Error("shared state missing");
}
`
	outcomes := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, outcomes, 2)
	assert.Equal(t, schemas.TestPassed, outcomes[0].Status)
	assert.Equal(t, schemas.TestPassed, outcomes[1].Status)
}

// Re-running the same pair yields the same names and statuses. Each run
// gets a fresh VM, so no state leaks between runs.
func TestRun_Idempotence(t *testing.T) {
	exec := newTestExecutor(t)

	script := `
if (typeof leaked !== "undefined") throw new Error("state leaked between runs");
var leaked = true;
function testOnce() {
    if (add(1, 2) !== 3) throw new Error("expected 3");
}
`
	first := exec.Run(context.Background(), addCandidate, script)
	second := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.Equal(t, first[0].Status, second[0].Status)
	assert.Equal(t, schemas.TestPassed, second[0].Status)
}

// A runaway test is interrupted by the configured timeout and reported as
// a failure, not a hang.
func TestRun_TimeoutInterruptsRunawayTest(t *testing.T) {
	cfg := testSandboxConfig()
	cfg.TestTimeout = 100 * time.Millisecond
	exec := New(cfg, zap.NewNop())

	script := `
function testSpins() {
    while (true) {}
}
`
	start := time.Now()
	outcomes := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, outcomes, 1)
	assert.Equal(t, schemas.TestFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Message, "interrupted")
	assert.Less(t, time.Since(start), 5*time.Second)
}

// console output is captured, not fatal, and capped.
func TestRun_ConsoleShim(t *testing.T) {
	exec := newTestExecutor(t)

	script := `
function testLogs() {
    console.log("debugging", 1, 2);
    console.error("still fine");
}
`
	outcomes := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, outcomes, 1)
	assert.Equal(t, schemas.TestPassed, outcomes[0].Status)
}

// A script defining no tests is a clean empty run.
func TestRun_NoTestsDiscovered(t *testing.T) {
	exec := newTestExecutor(t)

	outcomes := exec.Run(context.Background(), addCandidate, `var x = 1;`)
	assert.Empty(t, outcomes)
}

// Unbounded console output is clipped at the configured cap instead of
// growing with the loop.
func TestConsoleCapture_TruncatesAtLimit(t *testing.T) {
	cfg := testSandboxConfig()
	cfg.MaxConsoleBytes = 64
	exec := New(cfg, zap.NewNop())

	script := `
function testChatty() {
    for (var i = 0; i < 1000; i++) {
        console.log("line", i);
    }
}
`
	outcomes := exec.Run(context.Background(), addCandidate, script)

	require.Len(t, outcomes, 1)
	assert.Equal(t, schemas.TestPassed, outcomes[0].Status, "console truncation must not fail the test")
}
