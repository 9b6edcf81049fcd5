package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// FactoryFunc computes the value for a key on a cache miss.
type FactoryFunc func(ctx context.Context) ([]byte, error)

// Service orchestrates get-or-populate with single-flight, write-through
// registration in the invalidation index, and statistics recording.
type Service struct {
	store    Store
	index    *Index
	monitor  *Monitor
	defaults Defaults

	group singleflight.Group // per-key population lock
}

// NewService creates a cache service. Index and monitor may be nil when
// invalidation or statistics are not needed (tests, tooling).
func NewService(store Store, index *Index, monitor *Monitor, defaults Defaults) *Service {
	return &Service{
		store:    store,
		index:    index,
		monitor:  monitor,
		defaults: defaults,
	}
}

// GetOrCreate returns the cached value for key, or computes it via factory.
//
// On a hit the value is returned immediately. On a miss exactly one caller
// per key runs factory; concurrent callers for the same key await and
// receive the same computed value. Callers for different keys never block
// each other. A factory error is propagated unchanged and nothing is cached.
// policy.Bypass skips caching entirely.
func (s *Service) GetOrCreate(ctx context.Context, key string, policy Policy, factory FactoryFunc) ([]byte, error) {
	if s.store == nil {
		return nil, ErrNilStore
	}
	if factory == nil {
		return nil, ErrNilFactory
	}
	if policy.Bypass {
		return factory(ctx)
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	if value, ok := s.store.Get(ctx, key); ok {
		s.monitor.RecordHit()
		return value, nil
	}

	// Population must not die with the first caller: later arrivals for the
	// same key are attached to this flight and still want the result.
	flightCtx := context.WithoutCancel(ctx)

	ch := s.group.DoChan(key, func() (any, error) {
		return s.populate(flightCtx, key, policy, factory)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// populate runs the factory, writes through to the store, and registers the
// key in the invalidation index. A failed factory caches nothing.
func (s *Service) populate(ctx context.Context, key string, policy Policy, factory FactoryFunc) ([]byte, error) {
	// Another flight may have populated the key while we queued.
	if value, ok := s.store.Get(ctx, key); ok {
		s.monitor.RecordHit()
		return value, nil
	}

	start := time.Now()
	value, err := factory(ctx)
	if err != nil {
		return nil, err
	}

	ttl := s.defaults.EffectiveTTL(policy.TTL)
	if ttl > 0 {
		if err := s.store.Set(ctx, key, value, ttl); err != nil {
			// The computed value is still good; serve it uncached.
			s.monitor.RecordMiss(time.Since(start))
			return value, nil
		}
		if s.index != nil {
			_ = s.index.Register(key, policy.Tags, policy.DependencyRoot)
		}
	}

	s.monitor.RecordMiss(time.Since(start))
	return value, nil
}

// Invalidate applies a write kind's invalidation policy: tags first, then
// prefixes, then dependency roots. Returns the total number of keys removed.
// Re-invalidating already-absent keys is a no-op.
func (s *Service) Invalidate(ctx context.Context, policy InvalidationPolicy) (int, error) {
	if s.index == nil || policy.IsZero() {
		return 0, nil
	}

	total := 0
	for _, tag := range policy.Tags {
		n, err := s.index.InvalidateByTag(ctx, tag)
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, prefix := range policy.Prefixes {
		n, err := s.index.InvalidateByPrefix(ctx, prefix)
		if err != nil {
			return total, err
		}
		total += n
	}
	for _, root := range policy.DependencyRoots {
		n, err := s.index.InvalidateDependents(ctx, root)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Index exposes the invalidation index for administrative surfaces.
func (s *Service) Index() *Index {
	return s.index
}

// Monitor exposes the statistics monitor.
func (s *Service) Monitor() *Monitor {
	return s.monitor
}
