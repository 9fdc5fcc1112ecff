// Package chunk splits a serialized session token into size-bounded HTTP cookies and
// reassembles it from the cookies found on a request.
//
// # Wire format
//
// A token that fits the per-chunk budget travels in a single cookie named after the
// base name. A larger token is cut into consecutive slices named base.0, base.1, ...
// with no gaps. Ordinals are decimal, without leading zeros.
//
// # Failure semantics
//
// [Decode] never returns a partially reassembled token. Gaps, duplicate names, a mix of
// the unsuffixed and suffixed forms, or malformed ordinals are errors, and callers treat
// every error as "no session". The returned [Manifest] still lists every chunk name that
// was present so the caller can expire all of them.
//
// # Architecture boundaries
//
// This package only moves opaque strings in and out of cookies. It does not know what
// the token contains, how it is signed, or when it should be refreshed.
//
// # What this package must NOT do
//
//   - Import goSession, session, or refresh.
//   - Perform I/O or write to an http.ResponseWriter.
//   - Match cookies by loose prefix; names are parsed with [ParseName].
package chunk
