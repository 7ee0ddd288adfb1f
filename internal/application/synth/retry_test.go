package synth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetrier_Do_SucceedsWithoutRetryOnFirstAttempt(t *testing.T) {
	r := NewRetrier(fastRetryPolicy())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Do_RetriesUntilSuccess(t *testing.T) {
	r := NewRetrier(fastRetryPolicy())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_Do_ExhaustsAttemptsAndReturnsWrappedError(t *testing.T) {
	r := NewRetrier(fastRetryPolicy())
	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("always fails")
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max retry attempts")
	assert.Equal(t, 4, calls) // initial + MaxAttempts retries
}

func TestRetrier_Do_NonRetryableErrorStopsImmediately(t *testing.T) {
	policy := fastRetryPolicy()
	policy.RetryableErrors = []string{"connection reset"}
	r := NewRetrier(policy)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("permanent failure")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_Do_RespectsContextCancellation(t *testing.T) {
	r := NewRetrier(&RetryPolicy{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Do(ctx, func(ctx context.Context, attempt int) error {
		return errors.New("fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRetrier_NilPolicyFallsBackToDefault(t *testing.T) {
	r := NewRetrier(nil)
	assert.Equal(t, 3, r.policy.MaxAttempts)
}

func TestRetryBudget_TracksUsageAndRemaining(t *testing.T) {
	rb := NewRetryBudget(2)
	assert.True(t, rb.CanRetry())
	assert.Equal(t, 2, rb.Remaining())

	assert.True(t, rb.UseRetry())
	assert.True(t, rb.UseRetry())
	assert.False(t, rb.CanRetry())
	assert.False(t, rb.UseRetry())

	assert.Equal(t, 2, rb.Used())
	assert.Equal(t, 0, rb.Remaining())

	rb.Reset()
	assert.Equal(t, 0, rb.Used())
	assert.True(t, rb.CanRetry())
}
