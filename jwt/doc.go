// Package jwt signs and verifies the claims set that carries a session envelope.
//
// Signing is deterministic: the claims are a fixed struct with no issued-at or token id,
// and both supported algorithms (Ed25519 and HMAC-SHA256) are deterministic, so the same
// envelope always produces the same compact token. Access-token expiry is carried as a
// private claim and is not a JWT validity condition, because an expired envelope still
// has to be opened to be refreshed.
package jwt
