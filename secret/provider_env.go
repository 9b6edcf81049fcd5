package secret

import (
	"context"
	"fmt"
	"os"
)

// EnvProvider resolves secret references from the process environment.
// The ref is the variable name: secretref:env:JWT_SIGNING_KEY.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// Resolve looks the ref up as an environment variable.
func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	value, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", ref)
	}
	return value, nil
}

// Close is a no-op.
func (p *EnvProvider) Close() error {
	return nil
}

var _ Provider = (*EnvProvider)(nil)

func init() {
	_ = DefaultRegistry.Register("env", func(cfg map[string]any) (Provider, error) {
		return NewEnvProvider(), nil
	})
}
