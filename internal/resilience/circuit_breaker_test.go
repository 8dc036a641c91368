package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(&Config{Name: "t", FailureThreshold: 3, SleepWindow: 50 * time.Millisecond, HalfOpenRequests: 1})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func() error { return boom })
		require.Error(t, err)
	}

	assert.Equal(t, "open", cb.GetState())
	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(&Config{Name: "t", FailureThreshold: 1, SleepWindow: 20 * time.Millisecond, HalfOpenRequests: 2})

	_ = cb.Execute(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, "open", cb.GetState())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, cb.CanExecute())

	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	require.NoError(t, cb.Execute(context.Background(), func() error { return nil }))
	assert.Equal(t, "closed", cb.GetState())
}

func TestCircuitBreaker_ExecuteWithTimeout(t *testing.T) {
	cb := New(DefaultConfig("t"))
	err := cb.ExecuteWithTimeout(context.Background(), 10*time.Millisecond, func() error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCircuitBreaker_PanicRecovered(t *testing.T) {
	cb := New(DefaultConfig("t"))
	err := cb.Execute(context.Background(), func() error {
		panic("boom")
	})
	require.Error(t, err)
}

func TestDefaultErrorClassifier_IgnoresCancellation(t *testing.T) {
	assert.False(t, DefaultErrorClassifier(context.Canceled))
	assert.True(t, DefaultErrorClassifier(errors.New("network blew up")))
	assert.False(t, DefaultErrorClassifier(nil))
}
