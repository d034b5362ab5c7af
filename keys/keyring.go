package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/awnumar/memguard"
)

var (
	// ErrInvalidKey is returned when key material has the wrong size or type.
	ErrInvalidKey = errors.New("keys: invalid key material")
	// ErrKeyMismatch is returned when a public key does not belong to the private key.
	ErrKeyMismatch = errors.New("keys: public key does not match private key")
	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("keys: keyring destroyed")
)

// Keyring holds exactly one active Ed25519 keypair.
type Keyring struct {
	kid     string
	public  ed25519.PublicKey
	private *memguard.Enclave
}

// New seals a copy of private into an enclave. The caller keeps ownership of
// the slice it passed in.
func New(private ed25519.PrivateKey) (*Keyring, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKey
	}

	public, ok := private.Public().(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}

	sealed := make([]byte, len(private))
	copy(sealed, private)

	return &Keyring{
		kid:     KeyID(public),
		public:  append(ed25519.PublicKey(nil), public...),
		private: memguard.NewEnclave(sealed),
	}, nil
}

// Generate creates a fresh random keypair.
func Generate() (*Keyring, error) {
	_, private, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	defer wipe(private)
	return New(private)
}

// KeyID derives a stable identifier from a public key: the first 16 characters
// of the base64url SHA-256 digest.
func KeyID(public ed25519.PublicKey) string {
	sum := sha256.Sum256(public)
	return base64.RawURLEncoding.EncodeToString(sum[:])[:16]
}

// KeyID returns the identifier placed in the token header.
func (k *Keyring) KeyID() string {
	if k == nil {
		return ""
	}
	return k.kid
}

// PublicKey returns a copy of the verification key.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	if k == nil {
		return nil
	}
	return append(ed25519.PublicKey(nil), k.public...)
}

// WithPrivateKey decrypts the private key for the duration of fn. The key is
// wiped when fn returns and must not be retained.
//
// fn receives a heap copy: crypto/ed25519 caches keys by pointer and cannot
// reference memguard's mmap'd buffers.
func (k *Keyring) WithPrivateKey(fn func(ed25519.PrivateKey) error) error {
	if k == nil || k.private == nil {
		return ErrDestroyed
	}

	buf, err := k.private.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()

	if buf.Size() != ed25519.PrivateKeySize {
		return ErrInvalidKey
	}
	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(key, buf.Bytes())
	defer wipe(key)

	return fn(key)
}

// Destroy drops the enclave reference. Process-wide cleanup of enclave
// material is done with memguard.Purge on shutdown.
func (k *Keyring) Destroy() {
	if k == nil {
		return
	}
	k.private = nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
