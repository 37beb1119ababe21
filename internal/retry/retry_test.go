package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chisel-cli/api/schemas"
)

func testPolicy(maxRetries int) *Policy {
	// Millisecond delays keep the exponential schedule observable without
	// slowing the suite down.
	return New(maxRetries, time.Millisecond, 2.0, zap.NewNop())
}

// Two transient failures followed by a success: exactly three calls, no
// error surfaces.
func TestExecute_TransientThenSuccess(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", schemas.NewTransientBackendError("generate", fmt.Errorf("rate limited"))
		}
		return "ok", nil
	}

	out, err := Execute(context.Background(), testPolicy(3), op)

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, calls)
}

// A fatal error short-circuits with zero retries and is passed through
// untouched.
func TestExecute_FatalShortCircuits(t *testing.T) {
	calls := 0
	fatal := schemas.NewFatalBackendError("transform", fmt.Errorf("malformed payload"))
	op := func(ctx context.Context) (string, error) {
		calls++
		return "", fatal
	}

	_, err := Execute(context.Background(), testPolicy(5), op)

	require.Error(t, err)
	assert.Equal(t, 1, calls, "fatal errors must not trigger retries")
	var be *schemas.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "transform", be.Op)
	assert.False(t, schemas.IsTransient(err))
}

// Unclassified errors are treated as fatal.
func TestExecute_UnclassifiedErrorIsFatal(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("something unexpected")
	}

	_, err := Execute(context.Background(), testPolicy(3), op)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// Exhausting the budget on transient errors reclassifies the result as
// fatal while preserving the original cause in the chain.
func TestExecute_ExhaustionReclassifiesAsFatal(t *testing.T) {
	calls := 0
	cause := fmt.Errorf("still overloaded")
	op := func(ctx context.Context) (string, error) {
		calls++
		return "", schemas.NewTransientBackendError("generate", cause)
	}

	_, err := Execute(context.Background(), testPolicy(2), op)

	require.Error(t, err)
	assert.Equal(t, 3, calls, "maxRetries=2 means one initial attempt plus two retries")
	assert.False(t, schemas.IsTransient(err), "surfaced error must be fatal after exhaustion")
	assert.ErrorIs(t, err, cause, "original cause must be preserved")
	assert.Contains(t, err.Error(), "retries exhausted")
}

// Zero retries means exactly one attempt.
func TestExecute_ZeroRetries(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		return "", schemas.NewTransientBackendError("generate", fmt.Errorf("busy"))
	}

	_, err := Execute(context.Background(), testPolicy(0), op)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// Context cancellation aborts the backoff wait.
func TestExecute_ContextCancellation(t *testing.T) {
	policy := New(5, 10*time.Second, 2.0, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", schemas.NewTransientBackendError("generate", fmt.Errorf("busy"))
	}

	start := time.Now()
	_, err := Execute(ctx, policy, op)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abort the backoff wait")
}

// New clamps nonsensical parameters instead of failing.
func TestNew_ClampsParameters(t *testing.T) {
	p := New(-1, time.Second, 0.5, nil)
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, 1.0, p.BackoffFactor)
}
