// Package store provides the ephemeral key-value contract used for transient
// authentication state, plus Redis and in-process implementations.
//
// # Architecture boundaries
//
// A Store only moves opaque byte payloads with a per-key TTL. Encoding of the
// values it holds belongs to the caller (see internal/stores).
//
// # Failure model
//
//   - Absent or expired keys return ErrNotFound.
//   - Transport failures and operation timeouts return errors wrapping
//     ErrUnavailable. They are never reported as ErrNotFound.
package store
