package auth

import "time"

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodNone      AuthMethod = "none"
	AuthMethodJWT       AuthMethod = "jwt"
	AuthMethodAPIKey    AuthMethod = "api_key"
	AuthMethodAnonymous AuthMethod = "anonymous"
)

// Identity represents an authenticated principal.
type Identity struct {
	// Principal is the unique identifier (e.g., account ID, email).
	Principal string

	// Roles are the roles assigned to this identity. Roles are resolved to
	// capabilities by a CapabilitySource.
	Roles []string

	// Capabilities are the resolved capability strings this identity holds.
	Capabilities []string

	// Method indicates how authentication was performed.
	Method AuthMethod

	// Claims contains the raw claims from the credential.
	Claims map[string]any

	// ExpiresAt is when this identity expires.
	ExpiresAt time.Time

	// IssuedAt is when this identity was created.
	IssuedAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasCapability checks if the identity holds a specific capability.
func (id *Identity) HasCapability(cap string) bool {
	for _, c := range id.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// HasAnyCapability checks if the identity holds at least one of the given
// capabilities. An empty group is trivially satisfied.
func (id *Identity) HasAnyCapability(caps []string) bool {
	if len(caps) == 0 {
		return true
	}
	for _, c := range caps {
		if id.HasCapability(c) {
			return true
		}
	}
	return false
}

// IsExpired checks if the identity has expired.
func (id *Identity) IsExpired() bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(id.ExpiresAt)
}

// IsAnonymous returns true if this is an anonymous identity.
func (id *Identity) IsAnonymous() bool {
	return id.Method == AuthMethodAnonymous || id.Principal == ""
}

// AnonymousIdentity creates a default anonymous identity.
func AnonymousIdentity() *Identity {
	return &Identity{
		Principal: "anonymous",
		Method:    AuthMethodAnonymous,
		Claims:    make(map[string]any),
	}
}
