// Package storage provides the string key-value backends that authsession
// persists its credential and identity records into.
//
// # Backends
//
//   - [Memory]: process-local map, the default when nothing is configured.
//   - [File]: one file per key, written atomically.
//   - [Bolt]: a single bbolt database bucket.
//   - [Redis]: any redis.UniversalClient, with optional prefix and TTL.
//   - [Sealed]: decorator that encrypts values at rest with XChaCha20-Poly1305.
//
// # Architecture boundaries
//
// This package moves opaque strings. It does NOT know the shape of the
// records stored in it; encoding and corruption tolerance belong to the
// session package.
//
// # What this package must NOT do
//
//   - Import authsession, session, or jwt.
//   - Interpret or validate stored values.
//   - Log stored values.
package storage
