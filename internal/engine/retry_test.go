package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shaiso/Fleet/internal/domain"
)

func TestDelayFor_Fixed(t *testing.T) {
	policy := domain.RetryPolicy{Attempts: 5, DelayMs: 250, Backoff: domain.BackoffFixed}

	for n := 1; n <= 10; n++ {
		assert.Equal(t, 250*time.Millisecond, DelayFor(policy, n), "attempt %d", n)
	}
}

func TestDelayFor_Exponential(t *testing.T) {
	policy := domain.RetryPolicy{Attempts: 5, DelayMs: 100, Backoff: domain.BackoffExponential}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}
	for i, w := range want {
		assert.Equal(t, w, DelayFor(policy, i+1), "attempt %d", i+1)
	}
}

func TestDelayFor_Defaults(t *testing.T) {
	assert.Equal(t, time.Second, DelayFor(domain.RetryPolicy{}, 1))
	assert.Equal(t, time.Second, DelayFor(domain.RetryPolicy{}, 4))
	assert.Equal(t, 500*time.Millisecond, DelayFor(domain.RetryPolicy{DelayMs: 500, Backoff: domain.BackoffExponential}, 0),
		"attempt < 1 is treated as the first retry")
}

func TestDelayFor_MaxDelay(t *testing.T) {
	policy := domain.RetryPolicy{DelayMs: 100, Backoff: domain.BackoffExponential, MaxDelayMs: 300}

	assert.Equal(t, 200*time.Millisecond, DelayFor(policy, 2))
	assert.Equal(t, 300*time.Millisecond, DelayFor(policy, 3))
	assert.Equal(t, 300*time.Millisecond, DelayFor(policy, 30))
}

func TestDelayFor_Overflow(t *testing.T) {
	policy := domain.RetryPolicy{DelayMs: 1000, Backoff: domain.BackoffExponential}

	assert.Positive(t, DelayFor(policy, 200))
}

func TestWaitForBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForBackoff(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForBackoff_Zero(t *testing.T) {
	assert.NoError(t, WaitForBackoff(context.Background(), 0))
}
