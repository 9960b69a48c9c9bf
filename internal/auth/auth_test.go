package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/notifyhub/waitlist/internal/domain"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti := NewTokenIssuer(secret, time.Hour)

	token, exp, err := ti.Issue("admin-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry should be in the future, got %v", exp)
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.AdminID != "admin-1" {
		t.Fatalf("expected admin-1, got %s", claims.AdminID)
	}
	if claims.TokenID == "" || !claims.ExpiresAt.Equal(exp.Truncate(time.Second)) {
		t.Fatalf("unexpected claims %+v (exp %v)", claims, exp)
	}

	second, _, _ := ti.Issue("admin-1")
	other, err := ti.Verify(second)
	if err != nil {
		t.Fatalf("verify second: %v", err)
	}
	if other.TokenID == claims.TokenID {
		t.Fatal("each token must carry its own id")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	ti := NewTokenIssuer(secret, time.Minute)
	past := time.Now().Add(-2 * time.Hour)
	ti.now = func() time.Time { return past }

	token, _, err := ti.Issue("admin-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ti.now = time.Now
	if _, err := ti.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	ti := NewTokenIssuer(secret, time.Hour)
	token, _, _ := ti.Issue("admin-1")

	other := NewTokenIssuer(strings.Repeat("x", 32), time.Hour)
	foreign, _, _ := other.Issue("admin-1")

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   "admin-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"garbage":      "not-a-token",
		"tampered":     token + "x",
		"wrong secret": foreign,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ti.Verify(tok); !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "correct horse") {
		t.Fatal("expected password to match")
	}
	if CheckPassword(hash, "battery staple") {
		t.Fatal("expected wrong password to be rejected")
	}
}
