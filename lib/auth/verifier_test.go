package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
)

const testClientID = "test-client"

type testIssuer struct {
	key *rsa.PrivateKey
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return &testIssuer{key: key}
}

// sign creates a compact id token with the given claims on top of valid defaults
func (i *testIssuer) sign(t *testing.T, overrides map[string]any) string {
	t.Helper()
	claims := map[string]any{
		"iss":   "https://accounts.google.com",
		"sub":   "user-1",
		"aud":   testClientID,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
		"email": "user@example.com",
		"hd":    "example.com",
	}
	for k, v := range overrides {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to encode claims: %v", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: i.key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	token, err := jws.CompactSerialize()
	if err != nil {
		t.Fatalf("failed to serialize token: %v", err)
	}
	return token
}

func (i *testIssuer) verifier(domain string) IAuthVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&i.key.PublicKey}}
	v := oidc.NewVerifier(GoogleIssuerURL, keySet, &oidc.Config{ClientID: testClientID, SkipIssuerCheck: true})
	return NewOIDCVerifier(v, DefaultGoogleIssuers, domain)
}

func TestVerifyValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	v := issuer.verifier("example.com")

	for _, iss := range DefaultGoogleIssuers {
		id, err := v.Verify(context.Background(), issuer.sign(t, map[string]any{"iss": iss}))
		if err != nil {
			t.Fatalf("Verify with issuer %s failed: %v", iss, err)
		}
		if id.Subject != "user-1" || id.Email != "user@example.com" || id.Domain != "example.com" || id.Issuer != iss {
			t.Errorf("Unexpected identity %+v", id)
		}
	}
}

func TestVerifyWithoutDomain(t *testing.T) {
	issuer := newTestIssuer(t)
	v := issuer.verifier("")

	if _, err := v.Verify(context.Background(), issuer.sign(t, map[string]any{"hd": nil})); err != nil {
		t.Errorf("Verify without domain restriction failed: %v", err)
	}
}

func TestVerifyRejects(t *testing.T) {
	issuer := newTestIssuer(t)
	other := newTestIssuer(t)
	v := issuer.verifier("example.com")

	testCases := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrInvalidToken},
		{"wrong signature", other.sign(t, nil), ErrInvalidToken},
		{"wrong audience", issuer.sign(t, map[string]any{"aud": "someone-else"}), ErrInvalidToken},
		{"expired", issuer.sign(t, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()}), ErrInvalidToken},
		{"wrong issuer", issuer.sign(t, map[string]any{"iss": "https://evil.example"}), ErrWrongIssuer},
		{"wrong domain", issuer.sign(t, map[string]any{"hd": "other.com"}), ErrWrongDomain},
		{"missing domain", issuer.sign(t, map[string]any{"hd": nil}), ErrWrongDomain},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tc.token)
			if !errors.Is(err, tc.want) {
				t.Errorf("Verify = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDenyVerifier(t *testing.T) {
	v := NewDenyVerifier("no identity provider configured")
	_, err := v.Verify(context.Background(), "anything")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify = %v, want ErrInvalidToken", err)
	}
}
