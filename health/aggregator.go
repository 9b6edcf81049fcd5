package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures probe execution.
type AggregatorConfig struct {
	// Timeout bounds one CheckAll sweep across every probe.
	// Default: 10 seconds.
	Timeout time.Duration

	// Parallel fans the probes out concurrently. Default: true.
	Parallel bool
}

// Aggregator runs the portal's probes (cache, cache backend, memory) and
// folds their results into one serving status.
type Aggregator struct {
	config AggregatorConfig

	mu     sync.RWMutex
	probes map[string]Checker
	order  []string // registration order, for stable listings
}

// NewAggregator creates an aggregator. Without a config it probes in
// parallel under a 10 second sweep deadline.
func NewAggregator(config ...AggregatorConfig) *Aggregator {
	cfg := AggregatorConfig{Timeout: 10 * time.Second, Parallel: true}
	if len(config) > 0 {
		cfg = config[0]
		if cfg.Timeout <= 0 {
			cfg.Timeout = 10 * time.Second
		}
	}
	return &Aggregator{
		config: cfg,
		probes: make(map[string]Checker),
	}
}

// Register adds a probe under name. Re-registering a name replaces the
// probe without duplicating it in the listing.
func (a *Aggregator) Register(name string, checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.probes[name]; !exists {
		a.order = append(a.order, name)
	}
	a.probes[name] = checker
}

// Unregister removes the named probe.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.probes, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// CheckerNames lists the registered probes in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, len(a.order))
	copy(names, a.order)
	return names
}

// Check runs the single named probe.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	checker, ok := a.probes[name]
	a.mu.RUnlock()

	if !ok {
		return Result{}, ErrCheckerNotFound
	}
	return a.run(ctx, checker), nil
}

// CheckAll runs every registered probe under the sweep deadline and
// returns the results by probe name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	names := make([]string, len(a.order))
	copy(names, a.order)
	probes := make([]Checker, len(names))
	for i, name := range names {
		probes[i] = a.probes[name]
	}
	a.mu.RUnlock()

	results := make(map[string]Result, len(names))
	if len(names) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	if !a.config.Parallel {
		for i, name := range names {
			results[name] = a.run(ctx, probes[i])
		}
		return results
	}

	collected := make([]Result, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i := range probes {
		g.Go(func() error {
			collected[i] = a.run(ctx, probes[i])
			return nil
		})
	}
	_ = g.Wait() // probes report failure through their Result, never an error

	for i, name := range names {
		results[name] = collected[i]
	}
	return results
}

// OverallStatus folds probe results into one serving status: any
// unhealthy probe wins, then any degraded one; otherwise healthy.
func (a *Aggregator) OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// run executes one probe, stamping its duration and timestamp. A probe
// that outlives the deadline is reported unhealthy; its goroutine is
// abandoned with the buffered channel absorbing the late result.
func (a *Aggregator) run(ctx context.Context, checker Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)

	go func() {
		result := checker.Check(ctx)
		result.Duration = time.Since(start)
		if result.Timestamp.IsZero() {
			result.Timestamp = start
		}
		done <- result
	}()

	select {
	case result := <-done:
		return result
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  time.Since(start),
			Timestamp: start,
		}
	}
}
