// Package session persists the two records an authenticated client keeps
// between restarts: the credential pair and the cached identity snapshot.
//
// # Records
//
// Each record is a single JSON object stored under a fixed key of a
// [storage.KV]. Loading is corruption tolerant: a missing, unreadable,
// undecodable or half-filled record reads as absent, never as an error, so a
// damaged store degrades to "never logged in".
//
// # Architecture boundaries
//
// This package owns the [Credentials] and [Identity] models and their
// encoding. It does NOT decide when records are written; ordering
// (credentials before identity, identity cleared first) is enforced by the
// authsession controller, the only writer.
//
// # What this package must NOT do
//
//   - Import authsession or perform network I/O.
//   - Validate or decode credential contents.
//   - Log credential values.
package session
