// Package resilience provides the fault-tolerance primitives the Judge
// Adapter (internal/judge) wraps around calls to the external reviewer
// process: a circuit breaker and a jittered-backoff retry helper. Both are
// generalized from itsneelabh/gomind's resilience package.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelcode/auditcore/internal/core"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned immediately when the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrorClassifier decides whether an error should count toward the
// failure threshold. Non-infrastructure errors (bad config, context
// cancellation) should not trip the breaker.
type ErrorClassifier func(error) bool

// DefaultErrorClassifier counts everything except configuration errors and
// caller-initiated cancellation.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if core.IsConfigurationError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Config configures a CircuitBreaker.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SleepWindow      time.Duration // time in open state before probing
	HalfOpenRequests int           // trial requests allowed while half-open
	ErrorClassifier  ErrorClassifier
	Logger           core.Logger
}

// DefaultConfig returns a production-ready default.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 3,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker implements the closed/open/half-open state machine
// (spec.md's Judge Adapter retry policy relies on this to avoid hammering
// an unavailable reviewer).
type CircuitBreaker struct {
	config *Config

	state          atomic.Int32
	stateChangedAt atomic.Value // time.Time

	consecutiveFailures atomic.Int32
	halfOpenInFlight    atomic.Int32
	halfOpenSuccesses   atomic.Int32
	halfOpenFailures    atomic.Int32

	mu sync.Mutex
}

// New builds a CircuitBreaker from cfg, filling in defaults for zero values.
func New(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SleepWindow <= 0 {
		cfg.SleepWindow = 30 * time.Second
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 3
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = DefaultErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	cb := &CircuitBreaker{config: cfg}
	cb.state.Store(int32(StateClosed))
	cb.stateChangedAt.Store(time.Now())
	return cb
}

// GetState returns the current state as a string ("closed"|"open"|"half-open").
func (cb *CircuitBreaker) GetState() string {
	return CircuitState(cb.state.Load()).String()
}

// CanExecute reports whether Execute would currently admit a call.
func (cb *CircuitBreaker) CanExecute() bool {
	switch CircuitState(cb.state.Load()) {
	case StateClosed:
		return true
	case StateHalfOpen:
		return cb.halfOpenInFlight.Load() < int32(cb.config.HalfOpenRequests)
	default: // open
		changedAt, _ := cb.stateChangedAt.Load().(time.Time)
		if time.Since(changedAt) >= cb.config.SleepWindow {
			cb.transition(StateOpen, StateHalfOpen)
			return cb.halfOpenInFlight.Load() < int32(cb.config.HalfOpenRequests)
		}
		return false
	}
}

// Execute runs fn with circuit breaker protection (no timeout).
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	return cb.ExecuteWithTimeout(ctx, 0, fn)
}

// ExecuteWithTimeout runs fn under both circuit breaker protection and an
// optional timeout. fn runs in its own goroutine so a hung call doesn't
// block the caller past the deadline; the goroutine's eventual result is
// discarded in that case (orphaned, cleaned up when it finally returns).
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	if !cb.CanExecute() {
		return fmt.Errorf("circuit breaker %q: %w", cb.config.Name, ErrCircuitOpen)
	}

	halfOpen := CircuitState(cb.state.Load()) == StateHalfOpen
	if halfOpen {
		cb.halfOpenInFlight.Add(1)
		defer cb.halfOpenInFlight.Add(-1)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in circuit breaker %q: %v\n%s", cb.config.Name, r, debug.Stack())
			}
		}()
		done <- fn()
	}()

	select {
	case err := <-done:
		cb.recordResult(err, halfOpen)
		return err
	case <-ctx.Done():
		cb.recordResult(ctx.Err(), halfOpen)
		return ctx.Err()
	}
}

func (cb *CircuitBreaker) recordResult(err error, wasHalfOpen bool) {
	isFailure := cb.config.ErrorClassifier(err)

	if wasHalfOpen {
		if isFailure {
			cb.halfOpenFailures.Add(1)
			cb.transition(StateHalfOpen, StateOpen)
			cb.stateChangedAt.Store(time.Now())
		} else {
			successes := cb.halfOpenSuccesses.Add(1)
			if int(successes) >= cb.config.HalfOpenRequests {
				cb.Reset()
			}
		}
		return
	}

	if isFailure {
		failures := cb.consecutiveFailures.Add(1)
		if int(failures) >= cb.config.FailureThreshold {
			if cb.transition(StateClosed, StateOpen) {
				cb.stateChangedAt.Store(time.Now())
				cb.config.Logger.Warn("circuit breaker opened", map[string]interface{}{
					"name":     cb.config.Name,
					"failures": failures,
				})
			}
		}
	} else {
		cb.consecutiveFailures.Store(0)
	}
}

func (cb *CircuitBreaker) transition(from, to CircuitState) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if CircuitState(cb.state.Load()) != from {
		return false
	}
	cb.state.Store(int32(to))
	if to == StateHalfOpen {
		cb.halfOpenSuccesses.Store(0)
		cb.halfOpenFailures.Store(0)
	}
	return true
}

// Reset forces the breaker back to closed, clearing all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state.Store(int32(StateClosed))
	cb.consecutiveFailures.Store(0)
	cb.halfOpenSuccesses.Store(0)
	cb.halfOpenFailures.Store(0)
	cb.stateChangedAt.Store(time.Now())
}

// Metrics returns a snapshot useful for logging/telemetry.
func (cb *CircuitBreaker) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"name":                 cb.config.Name,
		"state":                cb.GetState(),
		"consecutive_failures": cb.consecutiveFailures.Load(),
		"half_open_in_flight":  cb.halfOpenInFlight.Load(),
	}
}
