package cache

import "time"

// Policy declares how a single cacheable request kind is cached and how
// write kinds invalidate it. A zero Policy disables caching.
type Policy struct {
	// KeyPrefix is the stable key template for this request kind.
	// Parameterized requests get a canonical input hash appended.
	KeyPrefix string

	// TTL is the entry lifetime. If zero, the service default applies.
	TTL time.Duration

	// Tags label the entry for bulk invalidation.
	Tags []string

	// DependencyRoot, if set, registers the entry as a direct dependent
	// of the given root key.
	DependencyRoot string

	// Bypass skips all caching for explicitly fresh reads.
	Bypass bool
}

// ShouldCache reports whether this policy enables caching.
func (p Policy) ShouldCache() bool {
	return !p.Bypass && p.KeyPrefix != ""
}

// Defaults bound the TTLs a Policy may request.
type Defaults struct {
	// DefaultTTL is used when a policy does not specify a TTL.
	// If zero, caching without an explicit TTL is disabled.
	DefaultTTL time.Duration

	// MaxTTL caps requested TTLs. If zero, no maximum is enforced.
	MaxTTL time.Duration
}

// DefaultDefaults returns the standard TTL bounds.
// DefaultTTL: 5 minutes, MaxTTL: 1 hour.
func DefaultDefaults() Defaults {
	return Defaults{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     1 * time.Hour,
	}
}

// EffectiveTTL returns the TTL to use, applying defaults and clamping.
func (d Defaults) EffectiveTTL(requested time.Duration) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = d.DefaultTTL
	}
	if d.MaxTTL > 0 && ttl > d.MaxTTL {
		ttl = d.MaxTTL
	}
	return ttl
}

// InvalidationPolicy declares the targeted invalidations a write kind
// triggers after its handler commits successfully.
type InvalidationPolicy struct {
	// Tags to invalidate.
	Tags []string

	// Prefixes to invalidate.
	Prefixes []string

	// DependencyRoots whose direct dependents are invalidated.
	DependencyRoots []string
}

// IsZero reports whether the policy declares no invalidations.
func (p InvalidationPolicy) IsZero() bool {
	return len(p.Tags) == 0 && len(p.Prefixes) == 0 && len(p.DependencyRoots) == 0
}
