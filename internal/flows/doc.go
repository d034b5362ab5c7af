// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunInitiatePasswordReset, RunLogin, RunAuthorize, ...)
// takes a typed dependency struct and has no side effects beyond those
// dependencies, so it can be tested with fakes and the Engine stays thin.
//
// Flows coordinate the reset session store, account directory, token
// manager, policy evaluator, audit and metrics. They own none of them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goGate (to avoid import cycles).
//   - Log or audit secrets: OTPs, reset tokens, passwords, bearer tokens.
package flows
