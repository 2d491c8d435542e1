// Package middleware adapts an authsession.Session to net/http clients.
//
// # Transport
//
// [Transport] is an [http.RoundTripper] that stamps the session's access
// credential on every outgoing request and applies the session's
// renew-once, retry-once policy on 401 responses. Wrap it in an
// [http.Client] to call protected APIs with plain net/http code.
//
// # Architecture boundaries
//
// This package translates HTTP round-trips into Session.Authorize attempts.
// It does NOT implement renewal itself; every decision is delegated to the
// session.
//
// # What this package must NOT do
//
//   - Read or write the credential store directly.
//   - Retry a request whose body cannot be replayed.
//   - Log credential values.
package middleware
