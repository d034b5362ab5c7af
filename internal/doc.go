// Package internal contains helpers private to goGate: secure random
// generation of reset session identifiers, OTPs and reset tokens.
//
// # Sub-packages
//
//   - audit — async event dispatch (Dispatcher + Sink implementations)
//   - config — YAML and environment configuration for the server binary
//   - flows — pure-function orchestrators for the password reset state machine
//   - rate — Redis fixed-window counters for optional OTP attempt caps
//   - stores — reset session codec and keyed persistence
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGate API.
//   - Be imported by any package outside the goGate module.
package internal
