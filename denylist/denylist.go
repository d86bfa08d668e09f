// Package denylist defines the optional post-verification revocation check.
// A verified token whose jti appears on the denylist is rejected even though
// its signature and claims are valid, which gives operators a kill switch for
// leaked credentials that would otherwise remain usable until expiry.
package denylist

import (
	"context"
	"time"
)

// Denylist records revoked token identifiers. Entries carry a TTL so a
// marker never needs to outlive the token it blocks.
type Denylist interface {
	// Revoke marks the token id as revoked for at least ttl.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	// Contains reports whether the token id is currently revoked.
	Contains(ctx context.Context, tokenID string) (bool, error)
}
