package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for pipeline-scoped values.
type contextKey int

const (
	correlationIDKey contextKey = iota
	stateKey
)

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the request's correlation ID, or empty.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// ensureCorrelationID returns the context's correlation ID, assigning a fresh
// one when the caller did not provide any.
func ensureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithCorrelationID(ctx, id), id
}

// execution tracks the lifecycle state of a single dispatch. It lives in the
// context for the duration of the dispatch; behaviors advance it and never
// retain it.
type execution struct {
	state State
}

func withExecution(ctx context.Context, ex *execution) context.Context {
	return context.WithValue(ctx, stateKey, ex)
}

func executionFromContext(ctx context.Context) *execution {
	ex, _ := ctx.Value(stateKey).(*execution)
	return ex
}

// advance moves the dispatch to the given state. Safe to call without an
// execution in the context (tests exercising behaviors in isolation).
func advance(ctx context.Context, s State) {
	if ex := executionFromContext(ctx); ex != nil && !ex.state.Terminal() {
		ex.state = s
	}
}

// StateFromContext reports the current lifecycle state of the dispatch.
// Returns StateReceived when called outside a dispatch.
func StateFromContext(ctx context.Context) State {
	if ex := executionFromContext(ctx); ex != nil {
		return ex.state
	}
	return StateReceived
}
