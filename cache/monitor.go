package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Monitor collects cache statistics. All methods are safe for concurrent
// use and safe on a nil receiver, so stores can record unconditionally.
type Monitor struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64

	populations    atomic.Int64
	populateNanos  atomic.Int64
	degraded       atomic.Bool
	degradedSince  atomic.Int64 // unix nanos, 0 when healthy
	degradedEvents atomic.Int64
}

// NewMonitor creates a new cache monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// RecordHit increments the hit counter.
func (m *Monitor) RecordHit() {
	if m == nil {
		return
	}
	m.hits.Add(1)
}

// RecordMiss records a miss and the latency of the population that followed.
func (m *Monitor) RecordMiss(populateLatency time.Duration) {
	if m == nil {
		return
	}
	m.misses.Add(1)
	m.populations.Add(1)
	m.populateNanos.Add(int64(populateLatency))
}

// RecordEviction increments the eviction counter.
func (m *Monitor) RecordEviction() {
	if m == nil {
		return
	}
	m.evictions.Add(1)
}

// RecordExpiration increments the lazy-expiry counter.
func (m *Monitor) RecordExpiration() {
	if m == nil {
		return
	}
	m.expirations.Add(1)
}

// RecordInvalidations adds n removed keys to the invalidation counter.
func (m *Monitor) RecordInvalidations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.invalidations.Add(int64(n))
}

// SetDegraded flips the remote-tier degraded flag.
func (m *Monitor) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	was := m.degraded.Swap(degraded)
	if degraded && !was {
		m.degradedSince.Store(time.Now().UnixNano())
		m.degradedEvents.Add(1)
	}
	if !degraded && was {
		m.degradedSince.Store(0)
	}
}

// Degraded reports whether the remote tier is in its cooldown window.
func (m *Monitor) Degraded() bool {
	if m == nil {
		return false
	}
	return m.degraded.Load()
}

// Snapshot is a consistent point-in-time view of the statistics.
// Counters are read individually without a global pause; a snapshot taken
// during concurrent updates may mix adjacent states but never goes backward.
type Snapshot struct {
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	Evictions     int64         `json:"evictions"`
	Expirations   int64         `json:"expirations"`
	Invalidations int64         `json:"invalidations"`
	HitRate       float64       `json:"hit_rate"`
	AvgPopulate   time.Duration `json:"avg_populate_ns"`
	Degraded      bool          `json:"degraded"`
	DegradedSince time.Time     `json:"degraded_since,omitzero"`
}

// Snapshot returns the current statistics.
func (m *Monitor) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	s := Snapshot{
		Hits:          m.hits.Load(),
		Misses:        m.misses.Load(),
		Evictions:     m.evictions.Load(),
		Expirations:   m.expirations.Load(),
		Invalidations: m.invalidations.Load(),
		Degraded:      m.degraded.Load(),
	}

	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	if pops := m.populations.Load(); pops > 0 {
		s.AvgPopulate = time.Duration(m.populateNanos.Load() / pops)
	}
	if since := m.degradedSince.Load(); since > 0 {
		s.DegradedSince = time.Unix(0, since)
	}

	return s
}

// Instrument registers observable counters on the given meter so the
// monitor's statistics flow to the configured telemetry backend.
func (m *Monitor) Instrument(meter metric.Meter) error {
	hits, err := meter.Int64ObservableCounter(
		"cache.hits",
		metric.WithDescription("Total cache hits"),
	)
	if err != nil {
		return err
	}
	misses, err := meter.Int64ObservableCounter(
		"cache.misses",
		metric.WithDescription("Total cache misses"),
	)
	if err != nil {
		return err
	}
	evictions, err := meter.Int64ObservableCounter(
		"cache.evictions",
		metric.WithDescription("Total capacity evictions"),
	)
	if err != nil {
		return err
	}
	invalidations, err := meter.Int64ObservableCounter(
		"cache.invalidations",
		metric.WithDescription("Total keys removed by invalidation"),
	)
	if err != nil {
		return err
	}
	degraded, err := meter.Int64ObservableGauge(
		"cache.remote_degraded",
		metric.WithDescription("1 while the remote tier is in cooldown"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := m.Snapshot()
		o.ObserveInt64(hits, s.Hits)
		o.ObserveInt64(misses, s.Misses)
		o.ObserveInt64(evictions, s.Evictions)
		o.ObserveInt64(invalidations, s.Invalidations)
		if s.Degraded {
			o.ObserveInt64(degraded, 1)
		} else {
			o.ObserveInt64(degraded, 0)
		}
		return nil
	}, hits, misses, evictions, invalidations, degraded)
	return err
}
