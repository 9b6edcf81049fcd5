package pipeline

import (
	"context"

	"github.com/jonwraymond/portalops/auth"
)

// AuthorizationBehavior checks the caller's capabilities against the
// descriptor's capability groups: at least one capability from every group
// (OR within a group, AND across groups).
//
// Kinds that declare no capability groups are open and run without a
// caller identity. For guarded kinds, a missing, anonymous, or expired
// identity yields ErrUnauthenticated; an authenticated caller without the
// required capabilities yields the generic ErrUnauthorized. The denial
// never names the missing capability.
type AuthorizationBehavior struct{}

// NewAuthorizationBehavior creates the behavior.
func NewAuthorizationBehavior() *AuthorizationBehavior {
	return &AuthorizationBehavior{}
}

func (b *AuthorizationBehavior) Handle(ctx context.Context, req Request, d Descriptor, next Next) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	advance(ctx, StateAuthorizing)

	if len(d.CapabilityGroups) == 0 {
		return next(ctx)
	}

	id := auth.IdentityFromContext(ctx)
	if id == nil || id.IsAnonymous() || id.IsExpired() {
		return nil, ErrUnauthenticated
	}

	for _, group := range d.CapabilityGroups {
		if !id.HasAnyCapability(group) {
			return nil, ErrUnauthorized
		}
	}

	return next(ctx)
}

var _ Behavior = (*AuthorizationBehavior)(nil)
