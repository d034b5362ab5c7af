// Package rate provides fixed-window attempt counters used to cap OTP
// verifications per reset session.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. The window
// starts at the first attempt and lasts for the configured duration. Key
// prefix:
//   - ro: — reset OTP attempts per session
//
// # What this package must NOT do
//
//   - Decide what happens when a limit is hit (that lives in internal/flows).
//   - Be imported outside the goGate module.
package rate
