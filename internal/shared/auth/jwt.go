package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity carried in an access token.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid token")
)

const (
	defaultTTL = 24 * time.Hour
	devSecret  = "dev-secret"
)

// Signer issues and verifies HS256 access tokens with one shared secret.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner builds a Signer. An empty secret is allowed outside production and
// falls back to a fixed dev value.
func NewSigner(secret, env string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		switch strings.ToLower(strings.TrimSpace(env)) {
		case "production", "prod":
			return nil, ErrMissingSecret
		}
		secret = devSecret
	}
	return &Signer{secret: []byte(secret), ttl: defaultTTL, now: time.Now}, nil
}

// Sign signs claims. Missing iat/exp default to now and now+24h.
func (s *Signer) Sign(claims Claims) (string, error) {
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("sub is required")
	}
	now := s.now().UTC()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (s *Signer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
