// Package identity derives the effective acting identity from a verified
// claim set. Resolution is a pure function: absent or malformed claim fields
// degrade to fallbacks, never to an error.
//
// Delegation ("act on behalf of another user") is gated by the
// can_impersonate realm role. The decision is computed once per request as an
// explicit two-variant value and passed to Resolve, which is the single place
// caller-supplied overrides are consulted. When the decision is Direct the
// overrides are discarded unconditionally — this is a security invariant, not
// a convenience default.
package identity

import (
	"context"

	"github.com/authgate-io/authgate/auth"
)

// RoleImpersonate is the realm role that permits acting as another identity.
const RoleImpersonate = "can_impersonate"

// Actor is the resolved identity attached to request context for downstream
// consumption. User is never empty when resolution succeeds: it falls back
// through preferred_username to sub.
type Actor struct {
	User   string
	Email  string
	Claims auth.ClaimSet
}

// Decision is the per-request delegation decision.
type Decision int

const (
	// Direct means the caller acts as the token's own subject; overrides are
	// ignored entirely.
	Direct Decision = iota
	// Delegated means the caller holds RoleImpersonate and may supply
	// override headers.
	Delegated
)

// Decide computes the delegation decision from the verified claims. A missing
// realm_access.roles claim is an empty role set, so the decision is Direct.
func Decide(claims auth.ClaimSet) Decision {
	if claims.HasRealmRole(RoleImpersonate) {
		return Delegated
	}
	return Direct
}

// Overrides carries the caller-supplied identity override values, if any.
// Empty fields mean "no override".
type Overrides struct {
	User  string
	Email string
}

// Resolve produces the acting identity. Token-derived values are
// preferred_username (falling back to sub) and email; overrides apply only
// under a Delegated decision, and only field-by-field where non-empty.
func Resolve(claims auth.ClaimSet, d Decision, o Overrides) Actor {
	user := claims.PreferredUsername()
	if user == "" {
		user = claims.Subject()
	}
	email := claims.Email()

	if d == Delegated {
		if o.User != "" {
			user = o.User
		}
		if o.Email != "" {
			email = o.Email
		}
	}

	return Actor{User: user, Email: email, Claims: claims}
}

type actorKey struct{}

// WithActor returns a context carrying the resolved actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor attached by the gateway, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
