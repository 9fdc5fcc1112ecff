// Package session defines the token envelope carried in session cookies and the sealer
// that turns it into an opaque string and back.
//
// # Envelope
//
// An [Envelope] is the {access token, refresh token, absolute expiry} triple issued by the
// identity provider. It is either complete or absent: partial envelopes are never sealed
// and never returned by [TokenSealer.Open].
//
// # Sealing
//
// [TokenSealer] signs the envelope as a JWS through the jwt package and, when an
// encryption key is configured, encrypts the JWS with XChaCha20-Poly1305. The nonce is
// derived from the plaintext with HMAC-SHA256, so sealing is deterministic: the same
// envelope always yields the same string and re-encoding an unchanged session does not
// move chunk boundaries.
//
// # Architecture boundaries
//
// This package does NOT split tokens into cookies (see chunk), decide when to refresh
// (see refresh), or talk to the identity provider.
//
// # What this package must NOT do
//
//   - Import goSession, chunk, or refresh.
//   - Return a partially decoded envelope; every failure is [ErrEnvelopeInvalid].
package session
