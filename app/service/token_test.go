package service_test

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/golang-jwt/jwt/v5"
)

func newIssuer(now *time.Time) *service.TokenIssuer {
	return service.NewTokenIssuer(config.JWTConfig{
		Secret:         "0123456789abcdef0123456789abcdef",
		Issuer:         "ms-go-identity",
		AccessTokenTTL: time.Hour,
	}, func() time.Time { return *now })
}

func TestTokenIssuer_IssueAndValidate(t *testing.T) {
	now := testNow
	issuer := newIssuer(&now)

	account := &entity.Account{ID: "acc-1", Email: "user@example.com", Roles: []string{entity.RoleUser}}
	token, expiresAt, err := issuer.Issue(account)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !expiresAt.Equal(testNow.Add(time.Hour)) {
		t.Fatalf("expected expiry one hour after issue, got %v", expiresAt)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.AccountID != "acc-1" || claims.Subject != "acc-1" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %#v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected token id")
	}
	if claims.Issuer != "ms-go-identity" {
		t.Fatalf("expected issuer, got %q", claims.Issuer)
	}
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	now := testNow
	issuer := newIssuer(&now)

	token, _, err := issuer.Issue(&entity.Account{ID: "acc-1", Email: "user@example.com"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	now = testNow.Add(time.Hour + time.Second)
	if _, err = issuer.Validate(token); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired token, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignSecret(t *testing.T) {
	now := testNow
	issuer := newIssuer(&now)
	other := service.NewTokenIssuer(config.JWTConfig{
		Secret:         "ffffffffffffffffffffffffffffffff",
		Issuer:         "ms-go-identity",
		AccessTokenTTL: time.Hour,
	}, func() time.Time { return now })

	token, _, err := other.Issue(&entity.Account{ID: "acc-1"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err = issuer.Validate(token); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestTokenIssuer_RejectsNonHMAC(t *testing.T) {
	now := testNow
	issuer := newIssuer(&now)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}

	claims := &service.Claims{
		AccountID: "acc-1",
		Email:     "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "ms-go-identity",
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := issuer.Validate(tokenString); err == nil {
		t.Fatalf("expected validation to fail for non-HMAC token")
	}
}

func TestTokenIssuer_RejectsMissingExpiry(t *testing.T) {
	now := testNow
	issuer := newIssuer(&now)

	claims := &service.Claims{
		AccountID:        "acc-1",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "ms-go-identity"},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	if _, err := issuer.Validate(tokenString); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestAccountIDFromClaims(t *testing.T) {
	if _, err := service.AccountIDFromClaims(nil); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for nil claims, got %v", err)
	}
	if _, err := service.AccountIDFromClaims(&service.Claims{}); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for empty claims, got %v", err)
	}

	mismatched := &service.Claims{AccountID: "acc-1", RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-2"}}
	if _, err := service.AccountIDFromClaims(mismatched); !errors.Is(err, service.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for mismatched subject, got %v", err)
	}

	id, err := service.AccountIDFromClaims(&service.Claims{AccountID: "acc-1", RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-1"}})
	if err != nil || id != "acc-1" {
		t.Fatalf("expected acc-1, got %q (%v)", id, err)
	}
}

func TestCanonicalizeEmail(t *testing.T) {
	cases := map[string]string{
		"User@Example.com":         "user@example.com",
		"  user@example.com \n":    "user@example.com",
		"first.last+tag@gmail.com": "first.last+tag@gmail.com",
	}
	for in, want := range cases {
		if got := service.CanonicalizeEmail(in); got != want {
			t.Fatalf("CanonicalizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
