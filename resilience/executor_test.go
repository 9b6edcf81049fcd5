package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutor_NoPatterns(t *testing.T) {
	exec := NewExecutor()

	if err := exec.Execute(context.Background(), okOp); err != nil {
		t.Errorf("Execute failed: %v", err)
	}
	if err := exec.Execute(context.Background(), failingOp); !errors.Is(err, errBackend) {
		t.Errorf("err = %v", err)
	}
}

func TestExecutor_RetryInsideCircuit(t *testing.T) {
	// One executor call with internal retries counts as one circuit failure.
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	exec := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})),
	)

	attempts := 0
	_ = exec.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBackend
	})

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, one failed call must not trip MaxFailures=2", cb.State())
	}
}

func TestExecutor_OpenCircuitSkipsRetry(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	exec := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetry(NewRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})),
	)

	_ = exec.Execute(context.Background(), failingOp)

	attempts := 0
	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBackend
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, open circuit must short-circuit retries", attempts)
	}
}

func TestExecutor_TimeoutPerAttempt(t *testing.T) {
	exec := NewExecutor(WithTimeout(10 * time.Millisecond))

	err := exec.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("err = %v, want ErrTimeout", err)
	}
}

func TestExecutor_RateLimiterOutermost(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})
	exec := NewExecutor(WithRateLimiter(rl), WithCircuitBreaker(cb))

	_ = exec.Execute(context.Background(), okOp)

	err := exec.Execute(context.Background(), failingOp)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("err = %v, want ErrRateLimitExceeded", err)
	}
	if cb.State() != StateClosed {
		t.Error("rate-limited call must not reach the circuit breaker")
	}
}
