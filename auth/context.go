package auth

import "context"

type contextKey int

const identityKey contextKey = iota

// WithIdentity attaches the authenticated caller to the context. The
// dispatcher's authorization stage and the logging stage read it back;
// the identity travels with the request and is never stored elsewhere.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the caller attached by WithIdentity, or nil
// for an anonymous request.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// PrincipalFromContext returns the attached caller's principal, or the
// empty string for an anonymous request.
func PrincipalFromContext(ctx context.Context) string {
	if id := IdentityFromContext(ctx); id != nil {
		return id.Principal
	}
	return ""
}
