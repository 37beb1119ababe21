// File: internal/retry/retry.go
// Description: Bounded exponential-backoff retry wrapped around every
// remote backend call. Transient failures (capacity/rate-limit signals)
// are retried; anything else short-circuits immediately. Exhausting the
// budget reclassifies the last transient error as fatal so the caller
// only ever observes fatal errors.

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

// Policy parameterizes retry behavior for one class of remote calls. The
// delay before retry attempt k is InitialDelay * BackoffFactor^(k-1); no
// jitter is applied so test expectations stay deterministic.
type Policy struct {
	// MaxRetries bounds the number of additional attempts beyond the first.
	MaxRetries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// BackoffFactor multiplies the delay after each retry. Must be >= 1.
	BackoffFactor float64

	logger *zap.Logger
}

// New builds a Policy. A nil logger is replaced with a no-op.
func New(maxRetries int, initialDelay time.Duration, backoffFactor float64, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoffFactor < 1 {
		backoffFactor = 1
	}
	return &Policy{
		MaxRetries:    maxRetries,
		InitialDelay:  initialDelay,
		BackoffFactor: backoffFactor,
		logger:        logger.Named("retry"),
	}
}

// Execute invokes op, retrying transient failures up to MaxRetries extra
// attempts. Wrapped operations must be effect-free on failure (all of ours
// are pure requests to a remote service). The returned error, if any, is
// always fatal: a fatal error from op is passed through untouched, and an
// exhausted transient error is reclassified as fatal with the original
// cause preserved in the chain.
func Execute[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0

	wrapped := func() (T, error) {
		attempts++
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if !schemas.IsTransient(err) {
			// Never retry a fatal error.
			return out, backoff.Permanent(err)
		}
		p.logger.Warn("Transient backend error, will retry",
			zap.Int("attempt", attempts),
			zap.Int("max_retries", p.MaxRetries),
			zap.Error(err),
		)
		return out, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.BackoffFactor
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // Bounded by attempt count, not wall clock.

	out, err := backoff.RetryWithData(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx))
	if err == nil {
		return out, nil
	}

	// Retries exhausted on a transient error: surface it as fatal so the
	// orchestrator has a single error class to deal with.
	if schemas.IsTransient(err) {
		err = schemas.NewFatalBackendError("retry",
			fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err))
	}
	return out, err
}
