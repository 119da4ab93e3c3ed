package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/gatekeeper/pkg/accesserr"
)

const (
	// MinSecretLength is the minimum HMAC key size in bytes (256 bits)
	MinSecretLength = 32
	// DefaultTokenTTL is used when TokenConfig.TTL is zero
	DefaultTokenTTL = 24 * time.Hour
	// MinTokenTTL is the shortest lifetime a token can carry; claims are whole seconds
	MinTokenTTL = time.Second
)

// Claims is the JWT claim set carried by session tokens
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenConfig configures a TokenCodec
type TokenConfig struct {
	// Secret is the HS256 signing key
	Secret []byte
	// Issuer is written to and required in the iss claim when set
	Issuer string
	// TTL is the lifetime of tokens created by Issue
	TTL time.Duration
	// Now overrides the clock (tests)
	Now func() time.Time
}

// TokenCodec encodes and decodes signed session tokens
type TokenCodec struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec creates a new token codec
func NewTokenCodec(cfg TokenConfig) (*TokenCodec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TTL < 0 || (cfg.TTL > 0 && cfg.TTL < MinTokenTTL) {
		return nil, fmt.Errorf("token TTL must be at least %s", MinTokenTTL)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	// Claims are checked by hand in Decode so that expiry is reported only
	// after the signature has been verified.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	return &TokenCodec{
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		parser: parser,
	}, nil
}

// TTL returns the lifetime used by Issue
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Encode signs the identity. Identical identities produce identical tokens.
func (c *TokenCodec) Encode(id *Identity) (string, error) {
	if id == nil {
		return "", fmt.Errorf("identity is required")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   id.Subject(),
			IssuedAt:  jwt.NewNumericDate(id.IssuedAt()),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt()),
		},
		Role: string(id.Role()),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Issue creates and signs a fresh identity valid for the codec TTL
func (c *TokenCodec) Issue(subject string, role Role) (string, *Identity, error) {
	now := c.now()
	id, err := NewIdentity(subject, role, now, now.Add(c.ttl))
	if err != nil {
		return "", nil, err
	}
	token, err := c.Encode(id)
	if err != nil {
		return "", nil, err
	}
	return token, id, nil
}

// Decode verifies a token and returns its identity.
//
// Signature and structure problems always yield InvalidToken; Expired is only
// reported for tokens whose signature verified.
func (c *TokenCodec) Decode(token string) (*Identity, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, c.keyFunc)
	if err != nil {
		return nil, accesserr.Wrap(accesserr.KindInvalidToken, "invalid token", err)
	}

	if claims.Subject == "" {
		return nil, accesserr.New(accesserr.KindInvalidToken, "token has no subject")
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, accesserr.Wrap(accesserr.KindInvalidToken, "token has invalid role", err)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, accesserr.New(accesserr.KindInvalidToken, "token is missing iat or exp")
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, accesserr.New(accesserr.KindInvalidToken, "token issuer mismatch")
	}

	issuedAt := claims.IssuedAt.Time.UTC()
	expiresAt := claims.ExpiresAt.Time.UTC()
	if !expiresAt.After(issuedAt) {
		return nil, accesserr.New(accesserr.KindInvalidToken, "token expiry precedes issue time")
	}
	if !c.now().Before(expiresAt) {
		return nil, accesserr.New(accesserr.KindExpired, "token expired")
	}

	return &Identity{
		subject:   claims.Subject,
		role:      role,
		issuedAt:  issuedAt,
		expiresAt: expiresAt,
	}, nil
}

func (c *TokenCodec) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return c.secret, nil
}
