// Package goSession keeps an identity provider session in browser cookies and
// refreshes its access token in front of an HR portal's REST gateway.
//
// The serialized session token is split across as many cookies as the
// browser size budget requires, reassembled on every request, and refreshed
// once per expiry window with concurrent refreshes collapsed onto one
// provider call. Engine methods are safe to call from multiple goroutines
// after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config] and
// value types ([Decision], [MetricsSnapshot]). Cookie chunking lives in chunk,
// envelope sealing in session and jwt, the refresh decision and guard in
// refresh, and pipeline orchestration in internal/flows.
//
// # What this package must NOT do
//
//   - Log or audit token material.
//   - Return a stale envelope after a failed refresh.
//   - Hold package-level mutable state; every guard belongs to an Engine.
//   - Import any sub-package that re-imports goSession (no import cycles).
package goSession
