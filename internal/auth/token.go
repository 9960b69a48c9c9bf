// Package auth issues and verifies admin bearer tokens and hashes admin
// passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/notifyhub/waitlist/internal/domain"
)

const issuer = "waitlist"

// TokenIssuer signs HS256 tokens whose subject is the admin id.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Claims is the verified content of a token.
type Claims struct {
	AdminID string
	// TokenID is the jti, used to revoke a single token on logout.
	TokenID   string
	ExpiresAt time.Time
}

// Issue returns a signed token for adminID and its expiry.
func (ti *TokenIssuer) Issue(adminID string) (string, time.Time, error) {
	now := ti.now().UTC()
	exp := now.Add(ti.ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   adminID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature and expiry of token and returns its claims.
// Every rejection wraps domain.ErrUnauthorized.
func (ti *TokenIssuer) Verify(token string) (*Claims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: token has no subject or id", domain.ErrUnauthorized)
	}
	return &Claims{
		AdminID:   claims.Subject,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
