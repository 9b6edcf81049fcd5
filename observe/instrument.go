package observe

import (
	"context"
	"time"
)

// Instrumentation bundles tracing, metrics, and logging around a single
// request execution. The pipeline's logging behavior delegates to it so the
// three concerns stay consistent: one span, one metric sample, one log line
// per dispatched request.
//
// Contract:
//   - Concurrency: Observe is safe for concurrent use.
//   - Context: the span context is propagated into fn.
//   - Errors: errors from fn are recorded and propagated unchanged.
type Instrumentation struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewInstrumentation creates an Instrumentation from the given components.
// Nil components are replaced with no-ops.
func NewInstrumentation(tracer Tracer, metrics Metrics, logger Logger) *Instrumentation {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Instrumentation{tracer: tracer, metrics: metrics, logger: logger}
}

// InstrumentationFromObserver creates an Instrumentation from an Observer.
func InstrumentationFromObserver(obs Observer) (*Instrumentation, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewInstrumentation(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Observe runs fn inside a span, records metrics, and logs the outcome.
// The returned value and error come from fn unchanged.
func (i *Instrumentation) Observe(ctx context.Context, meta RequestMeta, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, span := i.tracer.StartSpan(ctx, meta)

	start := time.Now()
	result, err := fn(ctx)
	duration := time.Since(start)

	i.tracer.EndSpan(span, err)
	i.metrics.RecordRequest(ctx, meta, duration, err)

	reqLogger := i.logger.WithRequest(meta)
	fields := []Field{
		{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000.0},
	}
	if err != nil {
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		reqLogger.Error(ctx, "request failed", fields...)
	} else {
		reqLogger.Info(ctx, "request completed", fields...)
	}

	return result, err
}

// Logger returns the underlying logger.
func (i *Instrumentation) Logger() Logger {
	return i.logger
}
