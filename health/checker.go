package health

import (
	"context"
	"time"
)

// Status classifies a probe outcome. Degraded means the component still
// serves requests with reduced guarantees, the way the cache does while its
// remote tier sits in a cooldown window.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	if s == "" {
		return "unknown"
	}
	return string(s)
}

// Result is one probe outcome.
type Result struct {
	Status Status

	// Message says why, in operator terms.
	Message string

	// Details carries probe-specific numbers (hit rates, byte counts).
	Details map[string]any

	// Duration and Timestamp are filled by the aggregator when zero.
	Duration  time.Duration
	Timestamp time.Time

	// Error is set when the probe itself failed.
	Error error
}

// Healthy builds a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message, Timestamp: time.Now()}
}

// Degraded builds a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message, Timestamp: time.Now()}
}

// Unhealthy builds an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err, Timestamp: time.Now()}
}

// WithDetails attaches probe details to the result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is a named probe over one component.
//
// Contract:
// - Concurrency: Check may run concurrently with itself.
// - Context: Check must return promptly once ctx is done; the aggregator
//   enforces its own deadline around every probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a plain function into a named Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc wraps fn as a Checker called name.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

func (f *CheckerFunc) Name() string { return f.name }

func (f *CheckerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Pinger is any component that can report reachability with a single call.
// The SQL cache tier and other storage backends satisfy this.
type Pinger interface {
	Ping(ctx context.Context) error
}
