package auth

// ClaimSet is the decoded payload of a verified token. It is created per
// request and discarded when the request completes; it is never persisted.
// Accessors degrade to zero values when a claim is absent or has an
// unexpected shape — consumers decide what absence means.
type ClaimSet map[string]any

func (c ClaimSet) str(name string) string {
	v, _ := c[name].(string)
	return v
}

// Subject returns the sub claim.
func (c ClaimSet) Subject() string { return c.str("sub") }

// PreferredUsername returns the preferred_username claim.
func (c ClaimSet) PreferredUsername() string { return c.str("preferred_username") }

// Email returns the email claim.
func (c ClaimSet) Email() string { return c.str("email") }

// Issuer returns the iss claim.
func (c ClaimSet) Issuer() string { return c.str("iss") }

// TokenID returns the jti claim.
func (c ClaimSet) TokenID() string { return c.str("jti") }

// RealmRoles returns the realm_access.roles claim as a slice. An absent or
// malformed claim yields an empty slice, never an error.
func (c ClaimSet) RealmRoles() []string {
	access, _ := c["realm_access"].(map[string]any)
	raw, _ := access["roles"].([]any)
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

// HasRealmRole reports whether the realm role set contains role.
func (c ClaimSet) HasRealmRole(role string) bool {
	for _, r := range c.RealmRoles() {
		if r == role {
			return true
		}
	}
	return false
}
