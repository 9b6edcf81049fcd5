package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/portalops/cache"
	"github.com/jonwraymond/portalops/observe"
)

// DispatcherConfig wires the dispatcher's collaborators. All fields are
// optional; a zero config dispatches with validation and authorization only.
type DispatcherConfig struct {
	// Cache is the cache service behind the caching behavior.
	Cache *cache.Service

	// Keyer generates cache keys for parameterized reads.
	// Default: cache.NewDefaultKeyer().
	Keyer cache.Keyer

	// Instrumentation observes every dispatch. Default: no-op.
	Instrumentation *observe.Instrumentation

	// Logger receives the caching behavior's invalidation outcomes.
	// Default: Instrumentation's logger, else no-op.
	Logger observe.Logger

	// SlowThreshold flags slow requests. Default: DefaultSlowThreshold.
	SlowThreshold time.Duration
}

// Dispatcher routes requests through the behavior chain to their handlers.
//
// The chain order is fixed at construction: logging/performance outermost,
// then validation, then authorization, then caching, then the terminal
// handler. A request failing an earlier stage never reaches a later one.
//
// Contract:
// - Concurrency: Dispatch is safe for concurrent use.
// - Context: cancellation is observed at every stage boundary.
// - Errors: handler errors are propagated unchanged.
type Dispatcher struct {
	registrations map[string]Registration
	chain         []Behavior
}

// NewDispatcher builds a dispatcher from static registrations. Every
// registration needs a kind and a handler; kinds must be unique.
func NewDispatcher(cfg DispatcherConfig, regs ...Registration) (*Dispatcher, error) {
	registrations := make(map[string]Registration, len(regs))
	validators := make(map[string][]Validator)

	for _, reg := range regs {
		kind := reg.Descriptor.Kind
		if kind == "" {
			return nil, errors.New("pipeline: registration without a kind")
		}
		if reg.Handler == nil {
			return nil, fmt.Errorf("%w: %q", ErrNilHandler, kind)
		}
		if _, exists := registrations[kind]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKind, kind)
		}
		registrations[kind] = reg
		if len(reg.Validators) > 0 {
			validators[kind] = reg.Validators
		}
	}

	logger := cfg.Logger
	if logger == nil && cfg.Instrumentation != nil {
		logger = cfg.Instrumentation.Logger()
	}

	chain := []Behavior{
		NewLoggingBehavior(cfg.Instrumentation, cfg.SlowThreshold),
		NewValidationBehavior(validators),
		NewAuthorizationBehavior(),
		NewCachingBehavior(cfg.Cache, cfg.Keyer, logger),
	}

	return &Dispatcher{
		registrations: registrations,
		chain:         chain,
	}, nil
}

// Dispatch routes the request through the chain and returns the handler's
// result. Cacheable reads return json.RawMessage; everything else returns
// whatever the handler returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reg, ok := d.registrations[req.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind())
	}

	ctx, _ = ensureCorrelationID(ctx)
	ex := &execution{state: StateReceived}
	ctx = withExecution(ctx, ex)

	terminal := func(ctx context.Context) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return reg.Handler(ctx, req)
	}

	result, err := compose(d.chain, req, reg.Descriptor, terminal)(ctx)
	ex.state = finalState(err)
	return result, err
}

// Descriptor returns the registered descriptor for a kind.
func (d *Dispatcher) Descriptor(kind string) (Descriptor, bool) {
	reg, ok := d.registrations[kind]
	return reg.Descriptor, ok
}

// Kinds returns the number of registered request kinds.
func (d *Dispatcher) Kinds() int {
	return len(d.registrations)
}

// finalState maps a dispatch outcome onto the terminal lifecycle state.
// Validation and authorization failures are rejections; everything else
// that errors is a failure.
func finalState(err error) State {
	if err == nil {
		return StateCompleted
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) || errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrUnauthorized) {
		return StateRejected
	}
	return StateFailed
}
