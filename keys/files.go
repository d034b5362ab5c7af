package keys

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	PrivateKeyFile = "signing_ed25519.pem"
	PublicKeyFile  = "signing_ed25519.pub.pem"
)

// ErrIncompleteKeyPair is returned when only one of the two key files exists.
var ErrIncompleteKeyPair = errors.New("keys: only one of the keypair files exists")

// LoadOrGenerate loads the keypair stored in dir. When neither file exists a
// new keypair is generated and persisted first. The private key file is
// written with mode 0600.
func LoadOrGenerate(dir string) (*Keyring, bool, error) {
	privPath := filepath.Join(dir, PrivateKeyFile)
	pubPath := filepath.Join(dir, PublicKeyFile)

	privExists, err := exists(privPath)
	if err != nil {
		return nil, false, err
	}
	pubExists, err := exists(pubPath)
	if err != nil {
		return nil, false, err
	}

	switch {
	case privExists && pubExists:
		ring, err := Load(dir)
		return ring, false, err
	case privExists != pubExists:
		return nil, false, ErrIncompleteKeyPair
	}

	ring, err := Generate()
	if err != nil {
		return nil, false, err
	}
	if err := Save(dir, ring); err != nil {
		return nil, false, err
	}
	return ring, true, nil
}

// Load reads both PEM files from dir and checks that they form a pair.
func Load(dir string) (*Keyring, error) {
	privPEM, err := os.ReadFile(filepath.Join(dir, PrivateKeyFile))
	if err != nil {
		return nil, err
	}
	pubPEM, err := os.ReadFile(filepath.Join(dir, PublicKeyFile))
	if err != nil {
		return nil, err
	}

	private, err := ParsePrivateKeyPEM(privPEM)
	if err != nil {
		return nil, err
	}
	defer wipe(private)

	public, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}
	if !public.Equal(private.Public()) {
		return nil, ErrKeyMismatch
	}

	return New(private)
}

// Save writes ring to dir as PKCS#8 and PKIX PEM files.
func Save(dir string, ring *Keyring) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(ring.PublicKey())
	if err != nil {
		return err
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	var privPEM []byte
	err = ring.WithPrivateKey(func(private ed25519.PrivateKey) error {
		der, err := x509.MarshalPKCS8PrivateKey(private)
		if err != nil {
			return err
		}
		privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
		wipe(der)
		return nil
	})
	if err != nil {
		return err
	}
	defer wipe(privPEM)

	if err := os.WriteFile(filepath.Join(dir, PrivateKeyFile), privPEM, 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, PublicKeyFile), pubPEM, 0o644)
}

func ParsePrivateKeyPEM(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	private, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 private key", ErrInvalidKey)
	}
	return private, nil
}

func ParsePublicKeyPEM(data []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	public, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 public key", ErrInvalidKey)
	}
	return public, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
