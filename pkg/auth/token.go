package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"advisorai/pkg/domain"
)

const (
	defaultIssuer = "advisorai"
	defaultTTL    = 7 * 24 * time.Hour
	defaultLeeway = 30 * time.Second
)

// ErrInvalidToken is returned for expired, malformed, or forged tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenIssuer signs and verifies session tokens (HS256).
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
}

// NewTokenIssuer creates a token issuer from a shared secret.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    ttl,
		leeway: defaultLeeway,
	}, nil
}

// Issue returns a signed session token for the user.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		ID:        domain.NewID(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifySubject validates the token and returns the subject user ID.
func (t *TokenIssuer) VerifySubject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(t.leeway),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
