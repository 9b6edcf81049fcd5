package pipeline

import "context"

// Next continues the chain toward the terminal handler.
type Next func(ctx context.Context) (any, error)

// Behavior is one cross-cutting stage of the dispatch chain.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: check cancellation before expensive work and before calling next.
// - Ordering: call next at most once; short-circuit by returning without it.
type Behavior interface {
	Handle(ctx context.Context, req Request, d Descriptor, next Next) (any, error)
}

// compose nests the behaviors around the terminal so that behaviors[0] runs
// outermost. The behavior list itself is fixed at construction time.
func compose(behaviors []Behavior, req Request, d Descriptor, terminal Next) Next {
	next := terminal
	for i := len(behaviors) - 1; i >= 0; i-- {
		b := behaviors[i]
		inner := next
		next = func(ctx context.Context) (any, error) {
			return b.Handle(ctx, req, d, inner)
		}
	}
	return next
}
