package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonwraymond/portalops/cache"
	"github.com/jonwraymond/portalops/observe"
)

// CachingBehavior serves cacheable read kinds from the cache service and
// triggers a write kind's declared invalidations strictly after its handler
// reports success. Responses are cached as JSON; cacheable reads therefore
// return json.RawMessage regardless of hit or miss, so callers see one shape.
//
// A failed handler caches nothing and invalidates nothing.
type CachingBehavior struct {
	service *cache.Service
	keyer   cache.Keyer
	logger  observe.Logger
}

// NewCachingBehavior creates the behavior. A nil keyer uses the default
// SHA-256 keyer; a nil logger discards.
func NewCachingBehavior(service *cache.Service, keyer cache.Keyer, logger observe.Logger) *CachingBehavior {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = observe.NopLogger()
	}
	return &CachingBehavior{service: service, keyer: keyer, logger: logger}
}

func (b *CachingBehavior) Handle(ctx context.Context, req Request, d Descriptor, next Next) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	advance(ctx, StateExecuting)

	if d.Mutation {
		return b.handleWrite(ctx, d, next)
	}
	if b.service == nil || !d.Cache.ShouldCache() {
		return next(ctx)
	}
	return b.handleCachedRead(ctx, req, d, next)
}

// handleCachedRead routes the read through GetOrCreate so concurrent callers
// for the same key share one handler execution.
func (b *CachingBehavior) handleCachedRead(ctx context.Context, req Request, d Descriptor, next Next) (any, error) {
	var input any
	if keyed, ok := req.(CacheKeyed); ok {
		input = keyed.CacheKeyInput()
	}

	key, err := b.keyer.Key(d.Cache.KeyPrefix, input)
	if err != nil {
		return nil, err
	}

	value, err := b.service.GetOrCreate(ctx, key, d.Cache, func(ctx context.Context) ([]byte, error) {
		result, err := next(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("pipeline: marshal %q response: %w", d.Kind, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// handleWrite runs the handler and, only on success, applies the declared
// invalidations. Invalidation failure does not fail the committed write; it
// is logged and surfaces through the monitor on the next scrape.
func (b *CachingBehavior) handleWrite(ctx context.Context, d Descriptor, next Next) (any, error) {
	result, err := next(ctx)
	if err != nil {
		return nil, err
	}

	if b.service != nil && !d.Invalidation.IsZero() {
		n, invErr := b.service.Invalidate(ctx, d.Invalidation)
		if invErr != nil {
			b.logger.Warn(ctx, "cache invalidation failed after write",
				observe.Field{Key: "kind", Value: d.Kind},
				observe.Field{Key: "error", Value: invErr.Error()},
			)
		} else if n > 0 {
			b.logger.Debug(ctx, "cache invalidated",
				observe.Field{Key: "kind", Value: d.Kind},
				observe.Field{Key: "removed", Value: n},
			)
		}
	}

	return result, nil
}

var _ Behavior = (*CachingBehavior)(nil)
