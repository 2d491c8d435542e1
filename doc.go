// Package authsession keeps an end user's access/refresh credential pair for
// a client application. It persists the pair across restarts, renews it when
// the server rejects the access credential, and exposes identity and session
// state to the rest of the application.
//
// A [Session] is created through [Builder.Build] and is safe for concurrent
// use. Authenticated calls go through [Session.Gateway] (or
// [middleware.Transport] for arbitrary http.Clients), which renews at most
// once per request and retries at most once.
//
// # Architecture boundaries
//
// authsession is the public surface: [Session], [Builder], [Config], the
// error taxonomy and the metrics/audit hooks. Request plumbing lives in
// internal/transport and operation sequencing in internal/flows; neither is
// exported. Persistence is pluggable through [storage.KV].
//
// # What this package must NOT do
//
//   - Verify credential signatures. Access credentials are decoded for
//     display and expiry hints only.
//   - Log credential values.
//   - Persist recovery words.
package authsession
