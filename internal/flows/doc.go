// Package flows contains the request pipeline as pure functions over a
// dependency struct.
//
// RunPipeline takes the incoming cookies and returns the decision plus every
// cookie the response must carry. RunPersist and RunClear cover sign-in and
// sign-out. The Engine owns the sealer, refresh coordinator, audit and
// metrics; flows only call them through PipelineDeps.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root package (to avoid import cycles).
//   - Write to an http.ResponseWriter.
package flows
