// Package keyset holds the identity provider's published signing keys for
// the lifetime of the process. The set is populated exactly once before the
// gateway accepts traffic — either from OIDC discovery (Fetch) or from a
// local JWKS file (FromFile) — and is read-only on the request path, so
// token verification never takes a lock and never performs network I/O.
//
// Rotation is opt-in: Refresh re-fetches the pinned jwks_uri on an interval,
// and Watch reloads a file-backed set when the file changes. Both swap the
// parsed set atomically; a failed reload keeps the previous keys. There is
// deliberately no refresh-on-unknown-kid path, which would let unauthenticated
// callers drive fetch traffic by probing with fabricated key ids.
package keyset
