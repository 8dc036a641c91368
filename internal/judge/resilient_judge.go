package judge

import (
	"context"
	"errors"

	"github.com/kestrelcode/auditcore/internal/core"
	"github.com/kestrelcode/auditcore/internal/resilience"
)

// ResilientJudge wraps an Adapter with the circuit breaker and retry
// policy described in spec.md §4.1: "at most N attempts (default 2) for
// Transient only, with exponential backoff; Unavailable and Timeout are
// surfaced immediately." Grounded on itsneelabh/gomind's
// resilience.RetryWithCircuitBreaker composition (resilience/retry.go),
// adapted here because that helper retries unconditionally — the Judge
// Adapter's contract only retries one failure class.
type ResilientJudge struct {
	inner   Adapter
	breaker *resilience.CircuitBreaker
	retry   *resilience.RetryConfig
	logger  core.Logger
}

// NewResilientJudge wraps inner with a circuit breaker (opens after
// repeated Judge failures to stop hammering an unavailable reviewer) and a
// retry policy applied only to ErrJudgeTransient failures.
func NewResilientJudge(inner Adapter, breaker *resilience.CircuitBreaker, retry *resilience.RetryConfig, logger core.Logger) *ResilientJudge {
	if breaker == nil {
		breaker = resilience.New(resilience.DefaultConfig("judge"))
	}
	if retry == nil {
		retry = resilience.DefaultRetryConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ResilientJudge{inner: inner, breaker: breaker, retry: retry, logger: logger}
}

// Invoke calls inner.Invoke under circuit-breaker protection. Only a
// Transient classification triggers the bounded, backed-off retry loop;
// Unavailable, Timeout, and ProtocolError surface on the very first
// attempt (spec.md §4.1).
func (r *ResilientJudge) Invoke(ctx context.Context, req AuditRequest) (*core.Review, error) {
	maxAttempts := r.retry.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !r.breaker.CanExecute() {
			return nil, core.NewAuditError("judge.invoke", "JudgeUnavailable", "Critical", false,
				"circuit breaker open: the Judge has failed repeatedly; wait for the sleep window to elapse",
				errors.Join(core.ErrJudgeUnavailable, resilience.ErrCircuitOpen))
		}

		var review *core.Review
		breakerErr := r.breaker.Execute(ctx, func() error {
			rev, err := r.inner.Invoke(ctx, req)
			if err != nil {
				return err
			}
			review = rev
			return nil
		})
		if breakerErr == nil {
			return review, nil
		}
		lastErr = breakerErr

		if !core.IsRetryable(breakerErr) || attempt == maxAttempts {
			return nil, breakerErr
		}

		r.logger.Warn("judge call failed transiently, retrying", map[string]interface{}{
			"attempt": attempt,
			"error":   breakerErr.Error(),
		})
		if err := resilience.SleepBackoff(ctx, r.retry, attempt); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

var _ Adapter = (*ResilientJudge)(nil)
