package security

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.StandardClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestParseAndValidate_OK(t *testing.T) {
	key := testKey(t)
	v := NewTokenVerifier(&key.PublicKey, "auth-svc", "sync-core", time.Minute)

	now := time.Now()
	token := signToken(t, key, jwt.StandardClaims{
		Issuer:    "auth-svc",
		Audience:  "sync-core",
		Subject:   "alice",
		IssuedAt:  now.Unix(),
		NotBefore: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})

	userID, err := v.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if userID != "alice" {
		t.Fatalf("subject mismatch: %q", userID)
	}
}

func TestParseAndValidate_Rejections(t *testing.T) {
	key := testKey(t)
	v := NewTokenVerifier(&key.PublicKey, "auth-svc", "sync-core", 0)
	now := time.Now()

	base := jwt.StandardClaims{
		Issuer:    "auth-svc",
		Audience:  "sync-core",
		Subject:   "alice",
		NotBefore: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}

	cases := []struct {
		name   string
		mutate func(c *jwt.StandardClaims)
		want   error
	}{
		{"wrong issuer", func(c *jwt.StandardClaims) { c.Issuer = "rogue" }, ErrInvalidIssuer},
		{"wrong audience", func(c *jwt.StandardClaims) { c.Audience = "other" }, ErrInvalidAudience},
		{"empty subject", func(c *jwt.StandardClaims) { c.Subject = "" }, ErrInvalidSubject},
	}
	for _, tc := range cases {
		claims := base
		tc.mutate(&claims)
		_, err := v.ParseAndValidate(signToken(t, key, claims))
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestParseAndValidate_Expiry(t *testing.T) {
	key := testKey(t)
	now := time.Now()

	expired := jwt.StandardClaims{
		Issuer:    "auth-svc",
		Audience:  "sync-core",
		Subject:   "alice",
		NotBefore: now.Add(-2 * time.Hour).Unix(),
		ExpiresAt: now.Add(-time.Minute).Unix(),
	}

	// без люфта просроченный токен отвергается ещё парсером
	strict := NewTokenVerifier(&key.PublicKey, "auth-svc", "sync-core", 0)
	if _, err := strict.ParseAndValidate(signToken(t, key, expired)); err == nil {
		t.Fatal("expired token should be rejected")
	}
}

func TestParseAndValidate_WrongKey(t *testing.T) {
	key := testKey(t)
	other := testKey(t)
	v := NewTokenVerifier(&other.PublicKey, "auth-svc", "sync-core", 0)

	now := time.Now()
	token := signToken(t, key, jwt.StandardClaims{
		Issuer:    "auth-svc",
		Audience:  "sync-core",
		Subject:   "alice",
		ExpiresAt: now.Add(time.Hour).Unix(),
	})

	if _, err := v.ParseAndValidate(token); err == nil {
		t.Fatal("token signed by a foreign key should be rejected")
	}
}
