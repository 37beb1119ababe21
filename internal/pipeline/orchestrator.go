// File: internal/pipeline/orchestrator.go
// Description: The migration pipeline state machine. One Run bootstraps a
// session (analysis + decomposition), then drives an explicit loop that
// processes units strictly one at a time in decomposition order: transform,
// generate tests, bounded self-healing validation, finalize, advance.

package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
	"github.com/xkilldash9x/chisel-cli/internal/config"
	"github.com/xkilldash9x/chisel-cli/internal/retry"
)

// Orchestrator owns the session for the duration of a run. It is the only
// writer of session state; concurrent readers go through Snapshot.
type Orchestrator struct {
	collaborator schemas.TransformCollaborator
	validator    schemas.Validator
	policy       *retry.Policy
	cfg          config.PipelineConfig
	logger       *zap.Logger
	sink         schemas.EventSink

	mu      sync.RWMutex
	session *schemas.Session
	started bool
}

// New wires up an orchestrator. The collaborator, validator and retry
// policy are required; a nil sink discards events.
func New(
	collaborator schemas.TransformCollaborator,
	validator schemas.Validator,
	policy *retry.Policy,
	cfg config.PipelineConfig,
	sink schemas.EventSink,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if collaborator == nil {
		return nil, fmt.Errorf("transform collaborator is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if policy == nil {
		return nil, fmt.Errorf("retry policy is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline configuration invalid: %w", err)
	}
	if sink == nil {
		sink = nopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		collaborator: collaborator,
		validator:    validator,
		policy:       policy,
		cfg:          cfg,
		sink:         sink,
		logger:       logger.Named("pipeline"),
	}, nil
}

// Snapshot returns a deep copy of the current session state, or nil before
// Run has started.
func (o *Orchestrator) Snapshot() *schemas.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session.Snapshot()
}

// Run executes one complete migration over inputText and returns the
// terminal session. The session is also returned on failure so callers can
// report partial progress. An orchestrator drives exactly one session;
// reuse is an error.
func (o *Orchestrator) Run(ctx context.Context, inputText string) (*schemas.Session, error) {
	if inputText == "" {
		return nil, fmt.Errorf("input text must not be empty")
	}

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator has already run a session; create a new one")
	}
	o.started = true
	o.session = newSession()
	o.mu.Unlock()

	if err := o.bootstrap(ctx, inputText); err != nil {
		o.mu.Lock()
		finishSession(o.session, schemas.SessionFailed, err)
		o.mu.Unlock()
		o.emitSession(schemas.SeverityError, "session failed during bootstrap", err)
		return o.Snapshot(), err
	}

	// Explicit driver loop: one pending unit at a time, in order. There is
	// never more than one in-flight remote operation across the session.
	for {
		if err := ctx.Err(); err != nil {
			o.mu.Lock()
			finishSession(o.session, schemas.SessionFailed, fmt.Errorf("session canceled: %w", err))
			o.mu.Unlock()
			o.emitSession(schemas.SeverityError, "session canceled", err)
			return o.Snapshot(), err
		}

		idx, unit := o.nextPending()
		if unit == nil {
			break
		}

		unitErr := o.processUnit(ctx, idx, unit)
		o.advance(idx, unit)

		if unitErr != nil && o.cfg.HaltOnUnitError {
			err := fmt.Errorf("halted on unit %s: %w", unit.Name, unitErr)
			o.mu.Lock()
			finishSession(o.session, schemas.SessionFailed, err)
			o.mu.Unlock()
			o.emitSession(schemas.SeverityError, "session halted on unit error", unitErr)
			return o.Snapshot(), err
		}
	}

	o.mu.Lock()
	finishSession(o.session, schemas.SessionCompleted, nil)
	verified := o.session.Verified()
	o.mu.Unlock()

	if verified {
		o.emitSession(schemas.SeveritySuccess, "migration completed, all units verified", nil)
	} else {
		o.emitSession(schemas.SeverityInfo, "migration completed with unverified units", nil)
	}
	return o.Snapshot(), nil
}

// bootstrap runs the analysis and decomposition stage. Any error here,
// after retries, is session-fatal.
func (o *Orchestrator) bootstrap(ctx context.Context, inputText string) error {
	o.mu.Lock()
	o.session.Status = schemas.SessionAnalyzing
	o.mu.Unlock()
	o.emitStage(schemas.SeverityThinking, schemas.StageAnalyze, "analyzing input", nil)

	plan, err := retry.Execute(ctx, o.policy, func(ctx context.Context) (string, error) {
		return o.collaborator.Analyze(ctx, inputText)
	})
	if err != nil {
		return &schemas.SessionBootstrapError{Stage: schemas.StageAnalyze, Err: err}
	}
	o.mu.Lock()
	o.session.OverallPlan = plan
	o.mu.Unlock()
	o.emitStage(schemas.SeverityInfo, schemas.StageAnalyze, "analysis produced migration plan", nil)

	o.emitStage(schemas.SeverityThinking, schemas.StageDecompose, "decomposing input into units", nil)
	specs, err := retry.Execute(ctx, o.policy, func(ctx context.Context) ([]schemas.UnitSpec, error) {
		return o.collaborator.Decompose(ctx, inputText)
	})
	if err != nil {
		return &schemas.SessionBootstrapError{Stage: schemas.StageDecompose, Err: err}
	}

	units := buildUnits(specs, inputText)
	if len(specs) == 0 {
		o.logger.Warn("Decomposition returned no units, treating whole input as one unit.")
	}

	o.mu.Lock()
	o.session.Units = units
	o.session.TotalSourceLines = totalSourceLines(units)
	o.session.Status = schemas.SessionProcessing
	o.session.CurrentIndex = 0
	o.mu.Unlock()

	o.emitStage(schemas.SeveritySuccess, schemas.StageDecompose,
		fmt.Sprintf("decomposition produced %d units", len(units)), nil)
	return nil
}

// nextPending returns the first non-terminal unit, or nil when all units
// are terminal. Units are fixed after decomposition, so index order is
// processing order.
func (o *Orchestrator) nextPending() (int, *schemas.Unit) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for i, u := range o.session.Units {
		if !u.Status.Terminal() {
			return i, u
		}
	}
	return schemas.NoCurrentUnit, nil
}

// processUnit runs the per-unit lifecycle: transform, generate tests, then
// the bounded self-healing validation loop. A returned error means the
// unit ended in UnitError; the unit is always left terminal.
func (o *Orchestrator) processUnit(ctx context.Context, idx int, unit *schemas.Unit) error {
	o.mu.Lock()
	o.session.CurrentIndex = idx
	o.mu.Unlock()

	log := o.logger.With(zap.String("unit", unit.Name), zap.Int("index", idx))
	log.Info("Processing unit.")

	// Step 1: transform.
	o.emitUnit(schemas.SeverityThinking, schemas.StageTransform, unit, 0, "transforming unit", nil)
	result, err := retry.Execute(ctx, o.policy, func(ctx context.Context) (*schemas.TransformResult, error) {
		return o.collaborator.Transform(ctx, unit)
	})
	if err != nil {
		o.failUnit(unit, schemas.StageTransform, err)
		return err
	}
	o.mu.Lock()
	unit.CandidateText = result.CandidateText
	unit.Summary = result.Summary
	unit.FieldMappings = result.FieldMappings
	o.mu.Unlock()
	o.emitUnit(schemas.SeveritySuccess, schemas.StageTransform, unit, 0, "transform produced candidate", nil)

	// Step 2: generate tests. The script is generated once and never
	// regenerated during healing.
	o.emitUnit(schemas.SeverityThinking, schemas.StageTests, unit, 0, "generating tests", nil)
	script, err := retry.Execute(ctx, o.policy, func(ctx context.Context) (string, error) {
		return o.collaborator.GenerateTests(ctx, unit.CandidateText, unit.SourceText)
	})
	if err != nil {
		o.failUnit(unit, schemas.StageTests, err)
		return err
	}
	o.mu.Lock()
	unit.TestScript = script
	o.mu.Unlock()
	o.emitUnit(schemas.SeveritySuccess, schemas.StageTests, unit, 0, "test script generated", nil)

	// Step 3: self-healing validation loop.
	if err := o.healLoop(ctx, unit, log); err != nil {
		o.failUnit(unit, schemas.StageHeal, err)
		return err
	}

	// Step 4: finalize. Done regardless of residual failures; those are
	// surfaced through TestResults and Verified.
	o.mu.Lock()
	unit.Status = schemas.UnitDone
	o.mu.Unlock()

	if unit.Verified {
		o.emitUnit(schemas.SeveritySuccess, schemas.StageFinalize, unit, unit.HealingAttempts,
			"unit verified", nil)
	} else {
		o.emitUnit(schemas.SeverityInfo, schemas.StageFinalize, unit, unit.HealingAttempts,
			fmt.Sprintf("unit finalized with %d residual test failures", schemas.CountFailures(unit.TestResults)), nil)
	}
	log.Info("Unit finalized.",
		zap.Bool("verified", unit.Verified),
		zap.Int("healing_attempts", unit.HealingAttempts))
	return nil
}

// healLoop alternates validation runs and healing revisions until the
// tests pass or the healing budget is spent. With budget N and persistent
// failures, exactly N+1 validation runs occur.
func (o *Orchestrator) healLoop(ctx context.Context, unit *schemas.Unit, log *zap.Logger) error {
	for attempt := 0; ; {
		o.emitUnit(schemas.SeverityThinking, schemas.StageValidate, unit, attempt, "running validation", nil)
		outcomes := o.validator.Run(ctx, unit.CandidateText, unit.TestScript)

		o.mu.Lock()
		unit.TestResults = outcomes
		o.mu.Unlock()

		failures := schemas.FailedOutcomes(outcomes)
		if len(failures) == 0 {
			o.mu.Lock()
			unit.Verified = true
			o.mu.Unlock()
			o.emitUnit(schemas.SeveritySuccess, schemas.StageValidate, unit, attempt,
				fmt.Sprintf("all %d tests passed", len(outcomes)), nil)
			return nil
		}

		o.emitUnit(schemas.SeverityError, schemas.StageValidate, unit, attempt,
			fmt.Sprintf("%d of %d tests failed", len(failures), len(outcomes)), nil)

		if attempt >= o.cfg.MaxHealingAttempts {
			log.Warn("Healing budget exhausted, finalizing unit with failures.",
				zap.Int("attempts", attempt), zap.Int("failures", len(failures)))
			return nil
		}

		o.emitUnit(schemas.SeverityThinking, schemas.StageHeal, unit, attempt+1, "healing candidate", nil)
		healed, err := retry.Execute(ctx, o.policy, func(ctx context.Context) (string, error) {
			return o.collaborator.Heal(ctx, unit, unit.CandidateText, unit.TestScript, failures)
		})
		if err != nil {
			return err
		}

		attempt++
		o.mu.Lock()
		unit.CandidateText = healed
		unit.HealingAttempts = attempt
		o.mu.Unlock()
		o.emitUnit(schemas.SeverityInfo, schemas.StageHeal, unit, attempt, "healed candidate applied", nil)
	}
}

// failUnit marks a unit terminal after a fatal backend error. Under the
// default continue-on-error policy this never halts the session.
func (o *Orchestrator) failUnit(unit *schemas.Unit, stage schemas.PipelineStage, err error) {
	o.mu.Lock()
	unit.Status = schemas.UnitError
	unit.Err = err.Error()
	o.mu.Unlock()
	o.emitUnit(schemas.SeverityError, stage, unit, unit.HealingAttempts, "unit failed", err)
	o.logger.Error("Unit processing failed.",
		zap.String("unit", unit.Name), zap.String("stage", string(stage)), zap.Error(err))
}

// advance moves CurrentIndex past a finalized unit and updates the
// progress counters. The index moves by exactly one per terminal unit and
// never decreases.
func (o *Orchestrator) advance(idx int, unit *schemas.Unit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.ProcessedSourceLines += unit.SourceLines()
	if o.session.CurrentIndex == idx {
		o.session.CurrentIndex = idx + 1
	}
}

func (o *Orchestrator) emitSession(sev schemas.EventSeverity, msg string, err error) {
	o.emitStage(sev, schemas.StageSession, msg, err)
}

func (o *Orchestrator) emitStage(sev schemas.EventSeverity, stage schemas.PipelineStage, msg string, err error) {
	ev := schemas.PipelineEvent{
		Severity:  sev,
		Stage:     stage,
		SessionID: o.sessionID(),
		Message:   msg,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	o.sink.Emit(ev)
}

func (o *Orchestrator) emitUnit(sev schemas.EventSeverity, stage schemas.PipelineStage, unit *schemas.Unit, attempt int, msg string, err error) {
	ev := schemas.PipelineEvent{
		Severity:  sev,
		Stage:     stage,
		SessionID: o.sessionID(),
		UnitID:    unit.ID,
		UnitName:  unit.Name,
		Attempt:   attempt,
		Message:   msg,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	o.sink.Emit(ev)
}

func (o *Orchestrator) sessionID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.session == nil {
		return ""
	}
	return o.session.ID
}
