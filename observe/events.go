package observe

import (
	"context"
	"time"
)

// Event is a discrete occurrence worth an audit trail entry, such as an
// administrative cache invalidation.
type Event struct {
	// Name identifies the event kind, dot-separated ("cache.invalidate").
	Name string

	// Actor is the principal that caused the event, if known.
	Actor string

	// Time is when the event occurred. Zero means "now" at publish time.
	Time time.Time

	// Fields carry event-specific attributes.
	Fields []Field
}

// EventSink receives events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: publishing is fire-and-forget; sinks swallow their own failures.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// LogSink publishes events as structured log lines.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a sink that writes to the given logger.
func NewLogSink(logger Logger) *LogSink {
	if logger == nil {
		logger = NopLogger()
	}
	return &LogSink{logger: logger}
}

// Publish writes the event at info level.
func (s *LogSink) Publish(ctx context.Context, ev Event) {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	fields := make([]Field, 0, len(ev.Fields)+3)
	fields = append(fields,
		Field{Key: "event", Value: ev.Name},
		Field{Key: "event_time", Value: at.UTC().Format(time.RFC3339Nano)},
	)
	if ev.Actor != "" {
		fields = append(fields, Field{Key: "actor", Value: ev.Actor})
	}
	fields = append(fields, ev.Fields...)

	s.logger.Info(ctx, "audit event", fields...)
}

var _ EventSink = (*LogSink)(nil)

type nopSink struct{}

func (nopSink) Publish(context.Context, Event) {}

// NopSink returns a sink that discards all events.
func NopSink() EventSink {
	return nopSink{}
}
