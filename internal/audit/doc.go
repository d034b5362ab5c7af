// Package audit implements async event dispatching for security-relevant
// operations: reset initiation and verification, login, refresh and
// authorization denials.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, zerolog, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event] — structured audit record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit. That belongs to the Engine.
//
// # What this package must NOT do
//
//   - Carry OTPs, reset tokens, bearer tokens or passwords in events.
//   - Import goGate or any sibling internal package.
package audit
