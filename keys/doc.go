// Package keys owns the signing keypair used for access and refresh tokens.
//
// A Keyring is built once at startup, either from PEM files (generated on
// first boot when absent) or from in-memory keys in tests, and is passed to
// the token manager by injection. The private key is sealed in a memguard
// enclave and only decrypted for the duration of a signing call. The
// public key and key id are immutable after construction, so a Keyring can be
// shared across goroutines without locking.
package keys
