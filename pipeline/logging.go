package pipeline

import (
	"context"
	"time"

	"github.com/jonwraymond/portalops/auth"
	"github.com/jonwraymond/portalops/observe"
)

// DefaultSlowThreshold flags requests slower than this when neither the
// dispatcher nor the descriptor overrides it.
const DefaultSlowThreshold = 500 * time.Millisecond

// LoggingBehavior observes the whole execution: one span, one metric sample,
// and one log line per dispatch, plus a slow-request warning when elapsed
// time crosses the threshold regardless of outcome.
type LoggingBehavior struct {
	inst          *observe.Instrumentation
	slowThreshold time.Duration
}

// NewLoggingBehavior creates the behavior. A zero slowThreshold uses
// DefaultSlowThreshold.
func NewLoggingBehavior(inst *observe.Instrumentation, slowThreshold time.Duration) *LoggingBehavior {
	if inst == nil {
		inst = observe.NewInstrumentation(nil, nil, nil)
	}
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	return &LoggingBehavior{inst: inst, slowThreshold: slowThreshold}
}

func (b *LoggingBehavior) Handle(ctx context.Context, req Request, d Descriptor, next Next) (any, error) {
	meta := observe.RequestMeta{
		Kind:          d.Kind,
		CorrelationID: CorrelationIDFromContext(ctx),
		Actor:         auth.PrincipalFromContext(ctx),
		Mutation:      d.Mutation,
	}

	threshold := b.slowThreshold
	if d.SlowThreshold > 0 {
		threshold = d.SlowThreshold
	}

	start := time.Now()
	result, err := b.inst.Observe(ctx, meta, func(ctx context.Context) (any, error) {
		return next(ctx)
	})
	if elapsed := time.Since(start); elapsed > threshold {
		// The execution tracker has not been assigned its terminal state
		// yet, so the outcome is derived from the dispatch error.
		b.inst.Logger().WithRequest(meta).Warn(ctx, "slow request",
			observe.Field{Key: "elapsed_ms", Value: float64(elapsed.Microseconds()) / 1000.0},
			observe.Field{Key: "threshold_ms", Value: float64(threshold.Microseconds()) / 1000.0},
			observe.Field{Key: "outcome", Value: finalState(err).String()},
		)
	}

	return result, err
}

var _ Behavior = (*LoggingBehavior)(nil)
