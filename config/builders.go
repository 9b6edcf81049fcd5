package config

import (
	"fmt"

	"github.com/jonwraymond/portalops/auth"
	"github.com/jonwraymond/portalops/cache"
	"github.com/jonwraymond/portalops/resilience"
	"github.com/jonwraymond/portalops/secret"
)

// BuildResolver instantiates the named secret providers from the default
// registry and returns a resolver over them. An empty provider set still
// yields a working resolver that performs env expansion only.
func BuildResolver(strict bool, providers map[string]map[string]any) (*secret.Resolver, error) {
	r := secret.NewResolver(strict)
	for name, cfg := range providers {
		p, err := secret.DefaultRegistry.Create(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: secret provider %q: %w", name, err)
		}
		r.Register(p)
	}
	return r, nil
}

// CacheDefaults returns the TTL bounds for the cache service.
func (c CacheConfig) CacheDefaults() cache.Defaults {
	return cache.Defaults{
		DefaultTTL: c.DefaultTTL.Std(),
		MaxTTL:     c.MaxTTL.Std(),
	}
}

// RoleGrants converts the YAML role graph to the auth package's form.
func (c AuthConfig) RoleGrants() map[string]auth.RoleGrant {
	if len(c.Roles) == 0 {
		return nil
	}
	grants := make(map[string]auth.RoleGrant, len(c.Roles))
	for role, rc := range c.Roles {
		grants[role] = auth.RoleGrant{
			Capabilities: rc.Capabilities,
			Inherits:     rc.Inherits,
		}
	}
	return grants
}

// CapabilitySource builds the static role resolver from the config graph.
func (c AuthConfig) CapabilitySource() auth.CapabilitySource {
	return auth.NewStaticCapabilitySource(c.RoleGrants(), c.DefaultRole)
}

// RateLimiter builds the admin command limiter.
func (c AdminConfig) RateLimiter() *resilience.RateLimiter {
	return resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Rate:  c.Rate,
		Burst: c.Burst,
	})
}

// KeyStore builds an API key store holding the configured admin keys.
// Keys are stored hashed; the plaintext never leaves this function.
func (c AdminConfig) KeyStore() *auth.MemoryAPIKeyStore {
	store := auth.NewMemoryAPIKeyStore()
	for i, key := range c.APIKeys {
		if key == "" {
			continue
		}
		_ = store.Add(&auth.APIKeyInfo{
			ID:        fmt.Sprintf("admin-%d", i),
			KeyHash:   auth.HashAPIKey(key),
			Principal: fmt.Sprintf("admin-%d", i),
		})
	}
	return store
}
