// Package auth validates bearer tokens (JWTs) against the signing keys held
// in a keyset.Set. It is the verification core of the gateway: a Verifier is
// configured once with the expected issuer and audience, and Verify is then a
// pure, synchronous check with no network I/O — the key set it consults was
// populated before the server started accepting traffic.
//
// # Failure taxonomy
//
// Verify returns one of five sentinel errors, each terminal for the request
// that presented the token:
//
//   - ErrMalformed: the token is not structurally a JWT.
//   - ErrUnknownKey: the token's kid matches no cached key.
//   - ErrInvalidSignature: the signature does not verify under the resolved
//     key, or the token's algorithm is not the one the key declares.
//   - ErrInvalidClaims: a standard claim check failed (exp, nbf, aud).
//   - ErrBadIssuer: the iss claim is not exactly the configured issuer.
//
// Callers classify with errors.Is; the gateway package is the sole place
// these are translated into HTTP responses.
//
// # Algorithm selection
//
// The verification algorithm is taken from the cached key descriptor's
// declared alg (RS256 when the descriptor omits it) and passed to the JWT
// parser as the only valid method. The token header's alg is never used to
// select the verification function, so an attacker cannot steer verification
// toward a different algorithm than the key was published for.
package auth
