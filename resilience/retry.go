package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy selects how the pause grows between attempts.
type BackoffStrategy int

const (
	// BackoffExponential multiplies the pause each attempt. The tiered
	// store uses it for remote writes so a struggling backend sees
	// quickly thinning traffic.
	BackoffExponential BackoffStrategy = iota
	// BackoffLinear grows the pause by the initial delay each attempt.
	BackoffLinear
	// BackoffConstant pauses the same amount between every attempt.
	BackoffConstant
)

// RetryConfig configures a retry budget.
type RetryConfig struct {
	// MaxAttempts bounds the total attempts, first try included.
	// Default: 3.
	MaxAttempts int

	// InitialDelay is the pause before the first retry. Default: 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the pause regardless of strategy. Default: 30s.
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor. Default: 2.0.
	Multiplier float64

	// Strategy selects the backoff curve. Default: BackoffExponential.
	Strategy BackoffStrategy

	// Jitter spreads the pauses so callers that failed together do not
	// retry together.
	Jitter bool

	// RetryIf filters which errors consume the budget. Default: every
	// non-nil error retries.
	RetryIf func(err error) bool

	// OnRetry observes each retry before its pause.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retry re-runs an operation until it succeeds or the budget is spent.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a retry handler, filling unset fields with defaults.
func NewRetry(config RetryConfig) *Retry {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	return &Retry{config: config}
}

// Execute runs op until it succeeds, a non-retryable error occurs, the
// context ends, or the budget is spent. When every attempt fails the last
// attempt's error is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			return err
		}
		if attempt >= r.config.MaxAttempts {
			return lastErr
		}

		delay := r.delayBefore(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// delayBefore computes the pause preceding retry number retry (1 is the
// first retry, following the initial attempt).
func (r *Retry) delayBefore(retry int) time.Duration {
	var delay time.Duration
	switch r.config.Strategy {
	case BackoffConstant:
		delay = r.config.InitialDelay
	case BackoffLinear:
		delay = r.config.InitialDelay * time.Duration(retry)
	default:
		growth := math.Pow(r.config.Multiplier, float64(retry-1))
		delay = time.Duration(float64(r.config.InitialDelay) * growth)
	}

	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.Jitter && delay > 0 {
		// Up to 25% jitter.
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(delay / 4)))
	}
	return delay
}
