package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/portalops/cache"
)

// CacheChecker reports the health of the tiered cache. The cache is
// degraded while the remote tier is in cooldown; requests still succeed
// against the local tier, so degraded never escalates to unhealthy here.
type CacheChecker struct {
	monitor *cache.Monitor
}

// NewCacheChecker creates a checker over the cache monitor.
func NewCacheChecker(monitor *cache.Monitor) *CacheChecker {
	return &CacheChecker{monitor: monitor}
}

// Name returns the name of this checker.
func (c *CacheChecker) Name() string {
	return "cache"
}

// Check reports cache health from the monitor's counters.
func (c *CacheChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	if c.monitor == nil {
		return Healthy("cache monitoring disabled")
	}

	snap := c.monitor.Snapshot()
	details := map[string]any{
		"hits":          snap.Hits,
		"misses":        snap.Misses,
		"hit_rate":      snap.HitRate,
		"evictions":     snap.Evictions,
		"expirations":   snap.Expirations,
		"invalidations": snap.Invalidations,
	}
	if snap.AvgPopulate > 0 {
		details["avg_populate"] = snap.AvgPopulate.String()
	}

	if snap.Degraded {
		msg := "remote tier unavailable, serving from local tier"
		if !snap.DegradedSince.IsZero() {
			details["degraded_since"] = snap.DegradedSince.UTC().Format(time.RFC3339)
			msg = fmt.Sprintf("remote tier unavailable for %s, serving from local tier",
				time.Since(snap.DegradedSince).Round(time.Second))
		}
		return Degraded(msg).WithDetails(details)
	}

	return Healthy(fmt.Sprintf("hit rate %.1f%%", snap.HitRate*100)).WithDetails(details)
}

// StoreChecker verifies a storage backend is reachable. The remote cache
// tier's SQL store satisfies Pinger.
type StoreChecker struct {
	name   string
	pinger Pinger
}

// NewStoreChecker creates a checker that pings the given backend.
func NewStoreChecker(name string, pinger Pinger) *StoreChecker {
	return &StoreChecker{name: name, pinger: pinger}
}

// Name returns the name of this checker.
func (s *StoreChecker) Name() string {
	return s.name
}

// Check pings the backend.
func (s *StoreChecker) Check(ctx context.Context) Result {
	if s.pinger == nil {
		return Healthy("no backend configured")
	}

	start := time.Now()
	if err := s.pinger.Ping(ctx); err != nil {
		return Unhealthy("backend unreachable", err)
	}

	return Healthy("backend reachable").WithDetails(map[string]any{
		"ping": time.Since(start).String(),
	})
}
