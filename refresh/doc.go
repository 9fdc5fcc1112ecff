// Package refresh decides when a session's access token must be renewed and
// coordinates the renewal against the identity provider.
//
// # Refresh window
//
// [ShouldRefresh] is true once the current time is within the refresh window of
// the envelope's access-token expiry. The comparison is inclusive: a request at
// exactly ExpiresAt - window refreshes.
//
// # De-duplication
//
// A [Coordinator] owns one [Guard]. The first caller to acquire it performs the
// provider exchange; callers that find it held return immediately with the
// envelope they were given and [Result.Deduplicated] set. The guard is not a
// queue and never blocks.
//
// # Known limitations
//
// De-duplication is best effort. [LocalGuard] covers a single process only;
// separate edge instances may each refresh the same token unless a [RedisGuard]
// is configured, and even then Redis errors degrade to local-only behaviour.
// Requests that arrive while another request is refreshing proceed with the
// old access token. If the provider rotates refresh tokens and rejects reuse,
// such a late request may later fail its own refresh and be signed out.
//
// # Architecture boundaries
//
// This package owns the window decision, the guard and the exchange call. It
// does not read or write cookies and does not seal envelopes.
package refresh
