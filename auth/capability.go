package auth

import (
	"context"
	"sort"
)

// CapabilitySource resolves an authenticated identity to its capability set.
// This is the boundary the pipeline's authorization behavior consumes; how
// capabilities are stored (static config, directory service, database) is the
// implementation's business.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Resolve should honor cancellation/deadlines.
// - Errors: an unknown role is not an error; it resolves to no capabilities.
type CapabilitySource interface {
	// Resolve returns the capabilities the identity holds.
	Resolve(ctx context.Context, id *Identity) ([]string, error)
}

// RoleGrant defines the capabilities a role carries.
type RoleGrant struct {
	// Capabilities are the capability strings granted by this role.
	Capabilities []string

	// Inherits lists roles this role inherits capabilities from.
	Inherits []string
}

// StaticCapabilitySource maps roles to capabilities from a fixed table with
// role inheritance. Inheritance cycles are tolerated; each role is visited
// at most once.
type StaticCapabilitySource struct {
	roles       map[string]RoleGrant
	defaultRole string
}

// NewStaticCapabilitySource creates a capability source from a role table.
// defaultRole, if non-empty, applies to identities with no roles.
func NewStaticCapabilitySource(roles map[string]RoleGrant, defaultRole string) *StaticCapabilitySource {
	return &StaticCapabilitySource{roles: roles, defaultRole: defaultRole}
}

// Resolve walks the identity's roles and their inheritance chains and returns
// the union of granted capabilities, sorted and deduplicated. Capabilities
// already present on the identity are preserved.
func (s *StaticCapabilitySource) Resolve(_ context.Context, id *Identity) ([]string, error) {
	caps := make(map[string]bool)
	for _, c := range id.Capabilities {
		caps[c] = true
	}

	seen := make(map[string]bool)
	queue := append([]string{}, id.Roles...)
	if len(queue) == 0 && s.defaultRole != "" {
		queue = append(queue, s.defaultRole)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if seen[current] {
			continue
		}
		seen[current] = true

		grant, ok := s.roles[current]
		if !ok {
			continue
		}
		for _, c := range grant.Capabilities {
			caps[c] = true
		}
		for _, inherited := range grant.Inherits {
			if !seen[inherited] {
				queue = append(queue, inherited)
			}
		}
	}

	result := make([]string, 0, len(caps))
	for c := range caps {
		result = append(result, c)
	}
	sort.Strings(result)
	return result, nil
}

// Ensure StaticCapabilitySource implements CapabilitySource
var _ CapabilitySource = (*StaticCapabilitySource)(nil)
