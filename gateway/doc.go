// Package gateway implements the authenticating middleware placed in front
// of a downstream HTTP handler. Every inbound request is either bypassed (a
// configured public path), rejected with 401 {"detail": <reason>}, or
// forwarded to the downstream handler with the resolved acting identity
// attached to the request context and stamped onto the X-Actor-* headers.
//
// The per-request flow:
//
//	Received -> PublicBypass | Unauthenticated | Verifying -> Forwarding | Rejected
//
// The gateway is the sole translator from verification and revocation
// failures into HTTP responses; nothing below it writes to the wire. It
// performs no network I/O on the request path: keys were cached before the
// server started, verification is pure computation, and the only blocking
// call is the downstream handler itself, which inherits the inbound request
// context and therefore its cancellation.
//
// Raw tokens and claim sets are never logged.
package gateway
