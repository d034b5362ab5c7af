// Package middleware adapts goGate.Engine.Authorize to net/http.
//
// # Guards
//
//   - [Authorize] resolves the caller from the Authorization header and
//     evaluates policy before the wrapped handler runs.
//
// The request's domain is its host without port, the object is the URL path
// and the action is the HTTP method. Each can be overridden with an [Option].
//
// # What this package must NOT do
//
//   - Parse or verify tokens directly (delegates to Engine).
//   - Evaluate policy rules itself.
//   - Echo token contents or internal error causes to the client.
package middleware
