package pipeline

import (
	"context"
	"time"

	"github.com/jonwraymond/portalops/cache"
)

// Request is a dispatchable portal request. Concrete requests are plain
// structs; Kind ties them to their static descriptor.
type Request interface {
	// Kind returns the request kind, e.g. "announcements.create".
	Kind() string
}

// CacheKeyed is implemented by parameterized read requests whose cache key
// depends on their input. The returned value is canonicalized and hashed into
// the key suffix. Requests without parameters need not implement it; they
// cache under the descriptor's bare key prefix.
type CacheKeyed interface {
	CacheKeyInput() any
}

// Handler executes the business operation for a request kind.
type Handler func(ctx context.Context, req Request) (any, error)

// Validator inspects a request and returns the field errors it finds.
// Validators run independently; every registered validator for a kind runs
// even when earlier ones fail.
type Validator func(ctx context.Context, req Request) []FieldError

// Descriptor statically declares how a request kind moves through the
// pipeline. Descriptors are plain values resolved at composition time.
type Descriptor struct {
	// Kind is the unique request kind.
	Kind string

	// Mutation marks write kinds. Reads may be cached; writes trigger
	// invalidations after their handler commits.
	Mutation bool

	// CapabilityGroups are the required capabilities: the caller must hold
	// at least one capability from every group (OR within a group, AND
	// across groups). Empty means any authenticated caller.
	CapabilityGroups [][]string

	// Cache is the cache policy for read kinds. A zero policy disables
	// caching for the kind.
	Cache cache.Policy

	// Invalidation declares the invalidations a write kind triggers after
	// its handler reports success.
	Invalidation cache.InvalidationPolicy

	// SlowThreshold overrides the dispatcher's slow-request threshold for
	// this kind. Zero means use the dispatcher default.
	SlowThreshold time.Duration
}

// Registration binds a descriptor to its handler and validators.
type Registration struct {
	Descriptor Descriptor
	Handler    Handler
	Validators []Validator
}
