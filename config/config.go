// Package config loads the portal's YAML configuration. Every string value
// passes through strict environment expansion and secretref resolution, so
// credentials never live in the file itself.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/portalops/observe"
	"github.com/jonwraymond/portalops/secret"
)

var (
	// ErrInvalidCapacity indicates a non-positive local cache capacity.
	ErrInvalidCapacity = errors.New("config: local cache capacity must be positive")

	// ErrMissingJWTSecret indicates JWT auth is configured without a secret.
	ErrMissingJWTSecret = errors.New("config: jwt secret is required when issuer is set")

	// ErrNoAdminKeys indicates the admin surface is enabled without API keys.
	ErrNoAdminKeys = errors.New("config: admin addr set but no api keys configured")
)

// Config is the full portal configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Observe  ObserveConfig  `yaml:"observe"`
	Admin    AdminConfig    `yaml:"admin"`
	Auth     AuthConfig     `yaml:"auth"`
}

// CacheConfig configures the tiered cache.
type CacheConfig struct {
	// LocalCapacity is the LRU entry limit for the local tier.
	LocalCapacity int `yaml:"local_capacity"`

	// DefaultTTL applies when a policy requests no TTL.
	DefaultTTL Duration `yaml:"default_ttl"`

	// MaxTTL caps every requested TTL.
	MaxTTL Duration `yaml:"max_ttl"`

	// SQLitePath is the remote tier's database file. Empty disables the
	// remote tier.
	SQLitePath string `yaml:"sqlite_path"`

	// RemoteTimeout bounds each remote tier operation.
	RemoteTimeout Duration `yaml:"remote_timeout"`

	// MaxFailures trips the remote tier's circuit breaker.
	MaxFailures int `yaml:"max_failures"`

	// Cooldown is how long the tripped breaker stays open.
	Cooldown Duration `yaml:"cooldown"`
}

// PipelineConfig configures request dispatch.
type PipelineConfig struct {
	// SlowThreshold flags requests slower than this.
	SlowThreshold Duration `yaml:"slow_threshold"`

	// SlowThresholds overrides the threshold per request kind.
	SlowThresholds map[string]Duration `yaml:"slow_thresholds"`
}

// ObserveConfig configures telemetry. It mirrors observe.Config in YAML form.
type ObserveConfig struct {
	ServiceName     string  `yaml:"service_name"`
	TracingEnabled  bool    `yaml:"tracing_enabled"`
	TracingExporter string  `yaml:"tracing_exporter"`
	SamplePct       float64 `yaml:"sample_pct"` // 0.0-1.0 trace sampling ratio
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	MetricsExporter string  `yaml:"metrics_exporter"`
	LogLevel        string  `yaml:"log_level"`
}

// AdminConfig configures the administrative surface.
type AdminConfig struct {
	// Addr is the listen address. Empty disables the admin surface.
	Addr string `yaml:"addr"`

	// APIKeys are the accepted keys, usually secretrefs.
	APIKeys []string `yaml:"api_keys"`

	// Rate and Burst bound admin commands per second.
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// RoleConfig maps one role to its capabilities and parents.
type RoleConfig struct {
	Capabilities []string `yaml:"capabilities"`
	Inherits     []string `yaml:"inherits"`
}

// AuthConfig configures authentication and the role graph.
type AuthConfig struct {
	// JWTSecret signs and verifies portal tokens, usually a secretref.
	JWTSecret string `yaml:"jwt_secret"`

	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`

	// Roles is the role to capability map with inheritance.
	Roles map[string]RoleConfig `yaml:"roles"`

	// DefaultRole applies to identities carrying no roles.
	DefaultRole string `yaml:"default_role"`
}

// Load reads, parses, resolves, and validates the configuration file.
func Load(ctx context.Context, path string, resolver *secret.Resolver) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(ctx, data, resolver)
}

// Parse decodes YAML, applies defaults, resolves secrets, and validates.
// Unknown fields are rejected.
func Parse(ctx context.Context, data []byte, resolver *secret.Resolver) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.resolve(ctx, resolver); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Cache.LocalCapacity == 0 {
		c.Cache.LocalCapacity = 1024
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = Duration(5 * time.Minute)
	}
	if c.Cache.MaxTTL == 0 {
		c.Cache.MaxTTL = Duration(time.Hour)
	}
	if c.Cache.RemoteTimeout == 0 {
		c.Cache.RemoteTimeout = Duration(2 * time.Second)
	}
	if c.Cache.MaxFailures == 0 {
		c.Cache.MaxFailures = 5
	}
	if c.Cache.Cooldown == 0 {
		c.Cache.Cooldown = Duration(30 * time.Second)
	}
	if c.Pipeline.SlowThreshold == 0 {
		c.Pipeline.SlowThreshold = Duration(500 * time.Millisecond)
	}
	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = "portalops"
	}
	if c.Observe.LogLevel == "" {
		c.Observe.LogLevel = "info"
	}
	if c.Observe.TracingExporter == "" {
		c.Observe.TracingExporter = "none"
	}
	if c.Observe.MetricsExporter == "" {
		c.Observe.MetricsExporter = "none"
	}
	if c.Observe.SamplePct == 0 {
		c.Observe.SamplePct = 1.0
	}
	if c.Admin.Rate == 0 {
		c.Admin.Rate = 10
	}
	if c.Admin.Burst == 0 {
		c.Admin.Burst = 5
	}
}

// resolve passes every externally supplied string through env expansion and
// secretref resolution.
func (c *Config) resolve(ctx context.Context, resolver *secret.Resolver) error {
	fields := []struct {
		name string
		p    *string
	}{
		{"cache.sqlite_path", &c.Cache.SQLitePath},
		{"observe.service_name", &c.Observe.ServiceName},
		{"admin.addr", &c.Admin.Addr},
		{"auth.jwt_secret", &c.Auth.JWTSecret},
		{"auth.issuer", &c.Auth.Issuer},
		{"auth.audience", &c.Auth.Audience},
	}
	for _, f := range fields {
		resolved, err := resolver.ResolveValue(ctx, *f.p)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", f.name, err)
		}
		*f.p = resolved
	}

	keys, err := resolver.ResolveSlice(ctx, c.Admin.APIKeys)
	if err != nil {
		return fmt.Errorf("config: resolve admin.api_keys: %w", err)
	}
	c.Admin.APIKeys = keys

	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Cache.LocalCapacity <= 0 {
		return ErrInvalidCapacity
	}
	if c.Auth.Issuer != "" && c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Admin.Addr != "" && len(c.Admin.APIKeys) == 0 {
		return ErrNoAdminKeys
	}

	obs := c.ObserveConfig()
	if err := obs.Validate(); err != nil {
		return err
	}
	return nil
}

// ObserveConfig converts the YAML section into the observe package's form.
func (c *Config) ObserveConfig() observe.Config {
	return observe.Config{
		ServiceName: c.Observe.ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   c.Observe.TracingEnabled,
			Exporter:  c.Observe.TracingExporter,
			SamplePct: c.Observe.SamplePct,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.Observe.MetricsEnabled,
			Exporter: c.Observe.MetricsExporter,
		},
		Logging: observe.LoggingConfig{
			Enabled: true,
			Level:   c.Observe.LogLevel,
		},
	}
}
