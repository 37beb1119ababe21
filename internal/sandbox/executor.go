// File: internal/sandbox/executor.go
// Description: Isolated JavaScript validation sandbox built on Goja. A run
// loads the candidate and its test script into a fresh VM, discovers the
// test functions, and executes each one. The executor never returns an
// error: sandbox bootstrap problems and test exceptions alike are encoded
// as TestOutcome data so the healing loop can consume them uniformly.

package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/config"
)

// Synthetic outcome names for failures that happen before any test runs.
const (
	candidateBootstrapName  = "candidate_bootstrap"
	testScriptBootstrapName = "testscript_bootstrap"
)

var _ schemas.Validator = (*Executor)(nil)

// Executor validates candidates inside an embedded Goja interpreter. Each
// Run gets its own VM, so one poisoned candidate cannot leak globals into
// the next run. Tests within a run share the VM: the candidate is loaded
// once and every test sees its bindings.
type Executor struct {
	cfg    config.SandboxConfig
	logger *zap.Logger
}

// New creates an Executor from validated sandbox configuration.
func New(cfg config.SandboxConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:    cfg,
		logger: logger.Named("sandbox"),
	}
}

// Run executes the candidate's test script and reports one outcome per
// discovered test. Bootstrap failures produce a single synthetic failed
// outcome. An empty result slice means the scripts loaded cleanly but
// defined no tests.
func (e *Executor) Run(ctx context.Context, candidateText, testScript string) []schemas.TestOutcome {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TestTimeout)
		defer cancel()
	}

	vm := goja.New()
	console := newConsoleCapture(e.cfg.MaxConsoleBytes)
	console.install(vm)

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-watchDone:
		}
	}()
	defer vm.ClearInterrupt()

	// Load the candidate. A candidate that cannot even evaluate fails the
	// whole run with a synthetic outcome the healer can act on.
	start := time.Now()
	if _, err := vm.RunString(candidateText); err != nil {
		e.logger.Debug("Candidate bootstrap failed.", zap.Error(err))
		return []schemas.TestOutcome{bootstrapFailure(candidateBootstrapName, err, ctx, time.Since(start))}
	}

	// Record which globals existed before the test script so discovery only
	// picks up functions the script itself defined.
	preexisting := make(map[string]struct{})
	for _, key := range vm.GlobalObject().Keys() {
		preexisting[key] = struct{}{}
	}

	start = time.Now()
	if _, err := vm.RunString(testScript); err != nil {
		e.logger.Debug("Test script bootstrap failed.", zap.Error(err))
		return []schemas.TestOutcome{bootstrapFailure(testScriptBootstrapName, err, ctx, time.Since(start))}
	}

	tests := e.discoverTests(vm, preexisting)
	outcomes := make([]schemas.TestOutcome, 0, len(tests))
	for _, name := range tests {
		outcomes = append(outcomes, e.runTest(ctx, vm, name))
		if ctx.Err() != nil {
			// The interrupt fired; remaining tests would fail the same way.
			break
		}
	}

	if dump := console.String(); dump != "" {
		e.logger.Debug("Sandbox console output.", zap.String("console", dump))
	}
	return outcomes
}

// discoverTests returns the names of callable globals created by the test
// script that carry the configured prefix, in definition order.
func (e *Executor) discoverTests(vm *goja.Runtime, preexisting map[string]struct{}) []string {
	var tests []string
	for _, key := range vm.GlobalObject().Keys() {
		if _, ok := preexisting[key]; ok {
			continue
		}
		if !strings.HasPrefix(key, e.cfg.TestPrefix) {
			continue
		}
		if _, ok := goja.AssertFunction(vm.Get(key)); !ok {
			continue
		}
		tests = append(tests, key)
	}
	return tests
}

// runTest calls one discovered test function. A normal return is a pass; a
// thrown exception or an interrupt is a failure with the reason captured in
// the message.
func (e *Executor) runTest(ctx context.Context, vm *goja.Runtime, name string) schemas.TestOutcome {
	fn, ok := goja.AssertFunction(vm.Get(name))
	if !ok {
		// Discovery already checked callability; a test redefining itself
		// mid-run lands here.
		return schemas.TestOutcome{
			Name:    name,
			Status:  schemas.TestFailed,
			Message: "test is no longer callable",
		}
	}

	start := time.Now()
	_, err := fn(goja.Undefined())
	elapsed := time.Since(start)

	if err != nil {
		return schemas.TestOutcome{
			Name:     name,
			Status:   schemas.TestFailed,
			Message:  executionErrorMessage(err, ctx),
			Duration: elapsed,
		}
	}
	return schemas.TestOutcome{
		Name:     name,
		Status:   schemas.TestPassed,
		Duration: elapsed,
	}
}

func bootstrapFailure(name string, err error, ctx context.Context, elapsed time.Duration) schemas.TestOutcome {
	return schemas.TestOutcome{
		Name:     name,
		Status:   schemas.TestFailed,
		Message:  executionErrorMessage(err, ctx),
		Duration: elapsed,
	}
}

// executionErrorMessage renders a Goja error as the message a healing
// prompt will see. Interrupts are reported via the context error so a
// timeout reads as a timeout, not as an opaque interrupt.
func executionErrorMessage(err error, ctx context.Context) string {
	if _, ok := err.(*goja.InterruptedError); ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Sprintf("execution interrupted: %v", ctxErr)
		}
		return "execution interrupted"
	}
	if jsErr, ok := err.(*goja.Exception); ok {
		return jsErr.String()
	}
	return err.Error()
}
