package schemas

import (
	"errors"
	"fmt"
)

// -- Error Taxonomy --
//
// Remote failures split into exactly two classes: transient (capacity and
// rate-limit signals, safe to retry) and fatal (everything else, including
// responses that cannot be parsed into the expected payload shape). The
// retry policy absorbs transient errors; the orchestrator only ever sees
// fatal ones. Sandbox load failures are never errors at all -- the
// validation executor converts them into failing TestOutcome data.

// BackendError is a classified failure from the generative backend.
type BackendError struct {
	// Op names the remote operation that failed (e.g. "transform").
	Op string
	// Transient marks the error as a retryable capacity/rate-limit signal.
	Transient bool
	// Err is the underlying cause, preserved across reclassification.
	Err error
}

func (e *BackendError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("backend %s: %s error: %v", e.Op, kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// NewTransientBackendError wraps err as a retryable backend failure.
func NewTransientBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Transient: true, Err: err}
}

// NewFatalBackendError wraps err as a non-retryable backend failure.
func NewFatalBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is classified as retryable. Unclassified
// errors are treated as fatal, matching the propagation policy.
func IsTransient(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Transient
}

// SessionBootstrapError marks a failure of the analysis/decomposition
// stage after retries were exhausted. It is the only session-fatal error
// class.
type SessionBootstrapError struct {
	Stage PipelineStage
	Err   error
}

func (e *SessionBootstrapError) Error() string {
	return fmt.Sprintf("session bootstrap failed at %s: %v", e.Stage, e.Err)
}

func (e *SessionBootstrapError) Unwrap() error { return e.Err }

// IsSessionBootstrap reports whether err halted the session before any
// units were produced.
func IsSessionBootstrap(err error) bool {
	var sbe *SessionBootstrapError
	return errors.As(err, &sbe)
}
