package security

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, exp, err := p.IssueAccess("u1", "u1@example.com")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("access token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}
	uid, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if uid != "u1" {
		t.Errorf("ValidateAccess: userID = %q, want u1", uid)
	}
}

func TestTokenVerifier_AcceptsProviderTokens(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	pub, err := ParsePublicKey(TestPublicKeyPEM())
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	v := NewTokenVerifier(pub, "test-issuer", "test-audience")
	token, _, err := p.IssueAccess("u2", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	uid, err := v.ValidateAccess(token)
	if err != nil || uid != "u2" {
		t.Fatalf("ValidateAccess = (%q, %v), want (u2, nil)", uid, err)
	}
	if _, _, err := v.IssueAccess("u2", ""); !errors.Is(err, ErrSigningDisabled) {
		t.Errorf("verify-only IssueAccess: want ErrSigningDisabled, got %v", err)
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ValidateAccessWrongAudienceOrIssuer(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := p.IssueAccess("u1", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	pub, _ := ParsePublicKey(TestPublicKeyPEM())
	for name, v := range map[string]*TokenProvider{
		"audience": NewTokenVerifier(pub, "test-issuer", "other-audience"),
		"issuer":   NewTokenVerifier(pub, "other-issuer", "test-audience"),
	} {
		if _, err := v.ValidateAccess(token); err != ErrInvalidToken {
			t.Errorf("wrong %s: want ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenProvider_ValidateAccessExpired(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	pub, _ := ParsePublicKey(testPublicKeyPEM)
	p := NewTokenProvider(signer, pub, "test-issuer", "test-audience", -time.Minute)
	token, _, err := p.IssueAccess("u1", "")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("expired token: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_RejectsHMACAlgorithm(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	claims := AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "test-issuer",
		Audience:  jwt.ClaimStrings{"test-audience"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testPublicKeyPEM))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := p.ValidateAccess(forged); err != ErrInvalidToken {
		t.Errorf("HS256 token: want ErrInvalidToken, got %v", err)
	}
}
