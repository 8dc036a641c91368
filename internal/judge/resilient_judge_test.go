package judge

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJudge struct {
	calls   atomic.Int32
	errSeq  []error
	review  *core.Review
}

func (c *countingJudge) Invoke(ctx context.Context, req AuditRequest) (*core.Review, error) {
	n := int(c.calls.Add(1)) - 1
	if n < len(c.errSeq) && c.errSeq[n] != nil {
		return nil, c.errSeq[n]
	}
	return c.review, nil
}

func fastRetry() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		JitterEnabled: false,
	}
}

func TestResilientJudge_RetriesOnlyTransient(t *testing.T) {
	inner := &countingJudge{
		errSeq: []error{core.ErrJudgeTransient},
		review: &core.Review{Overall: 80, Verdict: core.VerdictRevise},
	}
	r := NewResilientJudge(inner, nil, fastRetry(), nil)

	review, err := r.Invoke(context.Background(), AuditRequest{})
	require.NoError(t, err)
	assert.Equal(t, 80, review.Overall)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestResilientJudge_UnavailableSurfacesImmediately(t *testing.T) {
	inner := &countingJudge{errSeq: []error{core.ErrJudgeUnavailable}}
	r := NewResilientJudge(inner, nil, fastRetry(), nil)

	_, err := r.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeUnavailable)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestResilientJudge_TimeoutSurfacesImmediately(t *testing.T) {
	inner := &countingJudge{errSeq: []error{core.ErrJudgeTimeout}}
	r := NewResilientJudge(inner, nil, fastRetry(), nil)

	_, err := r.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeTimeout)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestResilientJudge_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	inner := &countingJudge{errSeq: []error{
		core.ErrJudgeUnavailable, core.ErrJudgeUnavailable, core.ErrJudgeUnavailable,
	}}
	breaker := resilience.New(&resilience.Config{
		Name:             "test-judge",
		FailureThreshold: 2,
		SleepWindow:      time.Hour,
		HalfOpenRequests: 1,
	})
	r := NewResilientJudge(inner, breaker, fastRetry(), nil)

	for i := 0; i < 2; i++ {
		_, err := r.Invoke(context.Background(), AuditRequest{})
		assert.ErrorIs(t, err, core.ErrJudgeUnavailable)
	}

	_, err := r.Invoke(context.Background(), AuditRequest{})
	assert.ErrorIs(t, err, core.ErrJudgeUnavailable)
	assert.Equal(t, "open", breaker.GetState())
	assert.Equal(t, int32(2), inner.calls.Load(), "circuit should short-circuit the third call before reaching inner")
}
