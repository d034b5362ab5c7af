// Package jwt issues and verifies the stateless access and refresh tokens
// using EdDSA signatures and strict validation semantics. Every verification
// failure collapses into ErrTokenInvalid.
//
// Tokens cannot be revoked: a leaked access token stays valid until its
// expiry. Short access lifetimes bound that exposure.
package jwt
