// Package flows contains the orchestrators behind every Session operation
// that changes credential state.
//
// Each Run function accepts a typed dependency struct and returns a result
// carrying a failure kind instead of a public error. The root package maps
// kinds onto its error taxonomy and owns the in-memory session.
//
// # Ordering
//
// Writes are sequenced credentials first, identity second. Clears run in the
// opposite order, so an identity record is never observable without the
// credential pair it was derived from. Once the server has answered
// successfully, persistence runs detached from the caller's context.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authsession (to avoid import cycles).
//   - Perform I/O directly; the network and stores come in through deps.
package flows
