// Package session provides Redis-backed persistence for portal login sessions.
//
// # Encoding
//
// Records are stored as a versioned JSON envelope. Older schema versions
// still decode and are migrated forward on read; the store writes the
// migrated record back so each session is upgraded at most once.
//
// # Lifecycle
//
// A session has an absolute lifetime (24h by default). A read that happens
// more than the refresh threshold (4h) after the last renewal pushes the
// expiry out by a full lifetime. Expiry is enforced lazily: the first read at
// or past ExpiresAt deletes the record.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not sign
// tokens, set cookies, or evaluate permissions; those belong to the token
// and permission packages and the root Engine.
package session
