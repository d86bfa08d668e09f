package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/authgate-io/authgate/keyset"
)

// Sentinel errors for the verification failure taxonomy. All map to HTTP 401
// at the gateway boundary.
var (
	ErrMalformed        = errors.New("auth: malformed token")
	ErrUnknownKey       = errors.New("auth: unknown key id")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrInvalidClaims    = errors.New("auth: invalid claims")
	ErrBadIssuer        = errors.New("auth: bad issuer")
)

const defaultLeeway = 60 * time.Second

// Verifier validates bearer tokens against a key set. It is immutable after
// construction and safe for concurrent use.
type Verifier struct {
	keys     *keyset.Set
	issuer   string
	audience string
	leeway   time.Duration
}

// VerifierOption configures optional validation knobs.
type VerifierOption func(*Verifier)

// WithLeeway sets clock skew tolerance for time-based claims. Defaults to 60s.
func WithLeeway(d time.Duration) VerifierOption {
	return func(v *Verifier) { v.leeway = d }
}

// NewVerifier constructs a Verifier. Issuer and audience are required: a
// token is only accepted when its iss claim equals issuer exactly and its aud
// claim contains audience.
func NewVerifier(keys *keyset.Set, issuer, audience string, opts ...VerifierOption) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("auth: key set is required")
	}
	if issuer == "" {
		return nil, errors.New("auth: issuer is required")
	}
	if audience == "" {
		return nil, errors.New("auth: audience is required")
	}
	v := &Verifier{keys: keys, issuer: issuer, audience: audience, leeway: defaultLeeway}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issuer returns the configured expected issuer.
func (v *Verifier) Issuer() string { return v.issuer }

// Audience returns the configured expected audience.
func (v *Verifier) Audience() string { return v.audience }

// JWKSURI returns the remote key set URL of the underlying key set, or ""
// when the keys were loaded from a file.
func (v *Verifier) JWKSURI() string { return v.keys.JWKSURI() }

// Verify checks the token's structure, signature, temporal claims, audience,
// and issuer, in that order, returning the decoded claims on success. It is
// side-effect free; if the request is abandoned there is nothing to undo.
func (v *Verifier) Verify(ctx context.Context, token string) (ClaimSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Header-only parse to learn which key the token names. Nothing from this
	// pass is trusted beyond the kid used for lookup.
	unverified, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kid, _ := unverified.Header["kid"].(string)

	key, ok := v.keys.Lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}

	// The key descriptor's declared algorithm is the only acceptable method.
	alg := key.Algorithm
	if alg == "" {
		alg = "RS256"
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.leeway),
	)
	parsed, err := parser.Parse(token, func(*jwt.Token) (any, error) { return key.Key, nil })
	if err != nil {
		return nil, classifyParseError(err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrInvalidClaims)
	}
	claims := ClaimSet(mapClaims)

	if claims.Issuer() != v.issuer {
		return nil, fmt.Errorf("%w: got %q", ErrBadIssuer, claims.Issuer())
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaims, err)
	}
}
