package jwt

import (
	"crypto/ed25519"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsVersion is the only claims layout this package issues and accepts.
const ClaimsVersion = 1

const (
	DefaultAccessTTL  = 5 * time.Minute
	DefaultRefreshTTL = 14 * 24 * time.Hour
)

// ErrTokenInvalid is the single verification outcome for malformed, forged,
// expired or mis-typed tokens.
var ErrTokenInvalid = errors.New("token invalid")

// Kind separates short-lived access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// KeySource supplies the active signing keypair. keys.Keyring implements it.
type KeySource interface {
	KeyID() string
	PublicKey() ed25519.PublicKey
	WithPrivateKey(func(ed25519.PrivateKey) error) error
}

// Config holds token lifetimes and validation parameters.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
	Leeway     time.Duration
	// Now overrides the clock used for issuing and validating. Nil means time.Now.
	Now func() time.Time
}

// Claims is the signed payload.
type Claims struct {
	Role    string `json:"role"`
	Kind    Kind   `json:"knd"`
	Version int    `json:"ver"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tokens with one keypair.
type Manager struct {
	config    Config
	keys      KeySource
	publicKey ed25519.PublicKey
	kid       string
	now       func() time.Time
}

// NewManager validates cfg and binds it to keys.
func NewManager(cfg Config, keys KeySource) (*Manager, error) {
	if keys == nil {
		return nil, errors.New("token manager requires a key source")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	public := keys.PublicKey()
	if len(public) != ed25519.PublicKeySize {
		return nil, errors.New("invalid ed25519 public key")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		config:    cfg,
		keys:      keys,
		publicKey: public,
		kid:       keys.KeyID(),
		now:       now,
	}, nil
}

// TTL returns the lifetime used for kind.
func (m *Manager) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return m.config.RefreshTTL
	}
	return m.config.AccessTTL
}

// Issue signs a token of the given kind for subject and role. It returns the
// encoded token and its expiry.
func (m *Manager) Issue(subject, role string, kind Kind) (string, time.Time, error) {
	if subject == "" || role == "" {
		return "", time.Time{}, errors.New("token subject and role are required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, errors.New("unknown token kind")
	}

	now := m.now()
	expiresAt := now.Add(m.TTL(kind))

	claims := Claims{
		Role:    role,
		Kind:    kind,
		Version: ClaimsVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	if m.kid != "" {
		token.Header["kid"] = m.kid
	}

	var signed string
	err := m.keys.WithPrivateKey(func(private ed25519.PrivateKey) error {
		var signErr error
		signed, signErr = token.SignedString(private)
		return signErr
	})
	if err != nil {
		return "", time.Time{}, err
	}

	// NumericDate has second precision; report what the verifier will see.
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies tokenStr and requires it to be of kind. Any failure returns
// ErrTokenInvalid.
func (m *Manager) Parse(tokenStr string, kind Kind) (*Claims, error) {
	claims, err := m.parse(tokenStr, kind)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, kind Kind) (*Claims, error) {
	if tokenStr == "" {
		return nil, errors.New("empty token")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if m.kid != "" {
			kid, _ := t.Header["kid"].(string)
			if kid != m.kid {
				return nil, errors.New("unknown kid")
			}
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Version != ClaimsVersion {
		return nil, errors.New("unsupported claims version")
	}
	if claims.Kind != kind {
		return nil, errors.New("unexpected token kind")
	}
	if claims.Subject == "" || claims.Role == "" {
		return nil, errors.New("missing subject or role")
	}
	if claims.IssuedAt == nil {
		return nil, errors.New("missing iat")
	}

	return claims, nil
}
