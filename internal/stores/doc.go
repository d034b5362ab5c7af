// Package stores persists short-lived password reset sessions on top of a
// store.Store.
//
// # Design
//
// Each session is a versioned, binary-encoded record written whole under its
// session id with a TTL. Reads never mutate the record. Deletion is explicit
// and only performed by the caller once a reset completes.
//
// # Architecture boundaries
//
// This package owns encoding and keying of reset records. It does NOT
// generate OTPs or tokens, compare secrets, or make reset decisions. Those
// belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import goGate or any sibling internal package.
//   - Log or expose plaintext secrets.
package stores
