package synth

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryPolicy governs exponential backoff around an inference call
// (spec §4.2: "exponential backoff retry on connection errors").
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	Jitter          bool
	RetryableErrors []string // substrings; empty means retry all errors
}

// DefaultRetryPolicy uses the inference client's 1s base and doubling,
// adding jitter and a 30s cap. MaxAttempts counts retries after the
// first call, so up to 4 calls are made in all.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// NoRetryPolicy disables retries.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 0}
}

// Retrier runs an operation that can transiently fail under a
// RetryPolicy.
type Retrier struct {
	policy *RetryPolicy
}

// NewRetrier creates a Retrier; a nil policy falls back to DefaultRetryPolicy.
func NewRetrier(policy *RetryPolicy) *Retrier {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return &Retrier{policy: policy}
}

// Do runs fn, retrying on error per the policy. attempt is 1-indexed and
// passed to fn so callers can attribute attempts in logs/events.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.calculateDelay(attempt)):
			}
		}

		err := fn(ctx, attempt+1)
		if err == nil {
			return nil
		}
		if !r.isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retry attempts (%d) exhausted: %w", r.policy.MaxAttempts, lastErr)
}

func (r *Retrier) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitterAmount := delay * 0.1
		jitter := (2*float64(time.Now().UnixNano()%1000)/1000 - 1) * jitterAmount
		delay += jitter
	}
	return time.Duration(delay)
}

func (r *Retrier) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}
	msg := err.Error()
	for _, pattern := range r.policy.RetryableErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryBudget tracks consumed retries across a multi-step operation so a
// budget can be shared across sub-calls that each have their own
// RetryPolicy.
type RetryBudget struct {
	maxRetries int
	used       int
}

// NewRetryBudget creates a RetryBudget.
func NewRetryBudget(maxRetries int) *RetryBudget {
	return &RetryBudget{maxRetries: maxRetries}
}

// CanRetry reports whether budget remains.
func (rb *RetryBudget) CanRetry() bool { return rb.used < rb.maxRetries }

// UseRetry consumes one unit of budget, returning false if exhausted.
func (rb *RetryBudget) UseRetry() bool {
	if !rb.CanRetry() {
		return false
	}
	rb.used++
	return true
}

// Remaining returns the unused budget.
func (rb *RetryBudget) Remaining() int { return rb.maxRetries - rb.used }

// Used returns the consumed budget.
func (rb *RetryBudget) Used() int { return rb.used }

// Reset clears consumed budget.
func (rb *RetryBudget) Reset() { rb.used = 0 }
