package secret

import "context"

// Provider resolves secrets by reference string. The config loader holds
// one provider per name seen in secretref values.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Resolve must not log or wrap the secret value into errors.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}
