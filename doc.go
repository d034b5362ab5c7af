// Package goGate provides the authentication and authorization core of a
// multi-tenant backend: an OTP-gated password reset state machine over an
// ephemeral store, stateless EdDSA-signed access and refresh tokens, and a
// request-time authorization decision point backed by path-template policy.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGate is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (InitiateResult, OTPResult, TokenPair, Decision, Identity).
// Flow orchestration, reset session encoding, attempt counting and audit
// dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Distinguish known from unknown phone numbers in InitiatePasswordReset.
//   - Distinguish expired from forged tokens in VerifyToken.
//   - Import any sub-package that re-imports goGate (no import cycles).
//
// # Known limitations
//
// Access and refresh tokens cannot be revoked. A leaked access token stays
// valid until it expires, five minutes by default.
package goGate
