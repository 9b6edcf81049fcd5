package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/portalops/observe"
	"github.com/jonwraymond/portalops/resilience"
)

// TieredStoreConfig configures the multi-tier store.
type TieredStoreConfig struct {
	// Local is the fast in-process tier. Required.
	Local Store

	// Remote is the shared persistent tier. Optional; without it the
	// tiered store degenerates to the local tier.
	Remote Store

	// Monitor receives degradation signals and statistics. Optional.
	Monitor *Monitor

	// Logger records remote-tier failures. Optional.
	Logger observe.Logger

	// RemoteTimeout bounds every remote operation.
	// Default: 2 seconds.
	RemoteTimeout time.Duration

	// MaxFailures is the number of consecutive remote failures before
	// entering the local-only cooldown window. Default: 5.
	MaxFailures int

	// Cooldown is how long the store stays local-only after the remote
	// tier is declared unhealthy. Default: 30 seconds.
	Cooldown time.Duration

	// WriteAttempts is the number of attempts for remote writes
	// (including the first). Default: 3.
	WriteAttempts int

	// BackfillTTL is the local TTL used when the remote tier cannot
	// report the entry's remaining lifetime. Default: 1 minute.
	BackfillTTL time.Duration
}

// TieredStore composes a local and a remote tier behind the Store contract.
//
// Reads check the local tier first, fall through to the remote tier on miss,
// and backfill the local tier with the remaining TTL. Writes go to both
// tiers; a remote write failure is logged but never surfaced to the caller.
// Repeated remote failures open a circuit breaker whose open state is the
// local-only cooldown window, reported to the Monitor as a degraded-health
// signal.
type TieredStore struct {
	local   Store
	remote  Store
	monitor *Monitor
	logger  observe.Logger

	breaker     *resilience.CircuitBreaker
	readExec    *resilience.Executor
	writeExec   *resilience.Executor
	backfillTTL time.Duration
}

// NewTieredStore creates a multi-tier store.
func NewTieredStore(cfg TieredStoreConfig) *TieredStore {
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 2 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 3
	}
	if cfg.BackfillTTL <= 0 {
		cfg.BackfillTTL = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	s := &TieredStore{
		local:       cfg.Local,
		remote:      cfg.Remote,
		monitor:     cfg.Monitor,
		logger:      cfg.Logger,
		backfillTTL: cfg.BackfillTTL,
	}

	s.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.MaxFailures,
		ResetTimeout: cfg.Cooldown,
		OnStateChange: func(from, to resilience.State) {
			degraded := to != resilience.StateClosed
			s.monitor.SetDegraded(degraded)
			s.logger.Warn(context.Background(), "cache remote tier state change",
				observe.Field{Key: "from", Value: from.String()},
				observe.Field{Key: "to", Value: to.String()})
		},
	})

	s.readExec = resilience.NewExecutor(
		resilience.WithCircuitBreaker(s.breaker),
		resilience.WithTimeout(cfg.RemoteTimeout),
	)
	s.writeExec = resilience.NewExecutor(
		resilience.WithCircuitBreaker(s.breaker),
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts:  cfg.WriteAttempts,
			InitialDelay: 50 * time.Millisecond,
		})),
		resilience.WithTimeout(cfg.RemoteTimeout),
	)

	return s
}

// Get reads local first, then remote. A remote hit backfills the local tier.
func (s *TieredStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := s.local.Get(ctx, key); ok {
		return value, true
	}
	if s.remote == nil {
		return nil, false
	}

	var value []byte
	var ttl time.Duration
	var found bool

	// Backends implementing EntryReader surface connection failures, so a
	// broken remote tier counts toward the breaker instead of passing as a
	// miss. Plain Store backends can only degrade through write failures
	// and timeouts.
	err := s.readExec.Execute(ctx, func(ctx context.Context) error {
		switch r := s.remote.(type) {
		case EntryReader:
			var readErr error
			value, ttl, found, readErr = r.GetEntry(ctx, key)
			return readErr
		case TTLStore:
			value, ttl, found = r.GetWithTTL(ctx, key)
		default:
			value, found = s.remote.Get(ctx, key)
		}
		return nil
	})
	if err != nil {
		// Behave as a plain miss. Cooldown rejections are not logged;
		// the state-change hook already recorded the transition.
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			s.logger.Warn(ctx, "cache remote read failed",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err.Error()})
		}
		return nil, false
	}
	if !found {
		return nil, false
	}
	if ttl <= 0 {
		ttl = s.backfillTTL
	}

	if err := s.local.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn(ctx, "cache local backfill failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()})
	}
	return value, true
}

// Set writes through both tiers. Remote failure degrades silently.
func (s *TieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if s.remote == nil {
		return nil
	}

	err := s.writeExec.Execute(ctx, func(ctx context.Context) error {
		return s.remote.Set(ctx, key, value, ttl)
	})
	if err != nil {
		s.logger.Warn(ctx, "cache remote write failed",
			observe.Field{Key: "key", Value: key},
			observe.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// Delete removes the key from both tiers.
func (s *TieredStore) Delete(ctx context.Context, key string) error {
	return s.DeleteMany(ctx, []string{key})
}

// DeleteMany removes a batch of keys from both tiers. Remote removal is
// best-effort during a cooldown window; remote entries still expire by TTL.
func (s *TieredStore) DeleteMany(ctx context.Context, keys []string) error {
	if err := s.local.DeleteMany(ctx, keys); err != nil {
		return err
	}
	if s.remote == nil {
		return nil
	}

	err := s.writeExec.Execute(ctx, func(ctx context.Context) error {
		return s.remote.DeleteMany(ctx, keys)
	})
	if err != nil {
		s.logger.Warn(ctx, "cache remote delete failed",
			observe.Field{Key: "keys", Value: len(keys)},
			observe.Field{Key: "error", Value: err.Error()})
	}
	return nil
}

// Degraded reports whether the remote tier is inside its cooldown window.
func (s *TieredStore) Degraded() bool {
	return s.breaker.State() != resilience.StateClosed
}

// Ensure TieredStore implements Store
var _ Store = (*TieredStore)(nil)
