// Package middleware exposes HTTP adapters that run the goSession request
// pipeline in front of protected handlers.
//
// # Adapters
//
//   - [Session]: net/http middleware that resolves the session and redirects or attaches the envelope.
//   - [Gin]: the same semantics as a gin.HandlerFunc.
//   - [ForwardBearer]: copies the session access token onto outbound
//     Authorization headers for the REST gateway.
//   - [SignOut]: clears every session chunk and redirects to sign-in.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT decide
// when to refresh or how cookies are chunked; all decisions are delegated to
// Engine.Resolve.
//
// # What this package must NOT do
//
//   - Read or write session cookies directly.
//   - Call the identity provider.
//   - Log token material.
package middleware
