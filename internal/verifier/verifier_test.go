package verifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hail-is/auth-gateway/internal/keyset"
	"github.com/hail-is/auth-gateway/internal/testutil"
	"github.com/hail-is/auth-gateway/internal/verifier"
)

const (
	testIssuer   = "https://issuer.example.com/"
	testAudience = "https://api.example.com"
)

func newVerifier(t *testing.T) *verifier.Verifier {
	t.Helper()
	key := testutil.SigningKey(t)
	resolver := keyset.NewStaticResolver(&keyset.SigningKey{
		KeyID:     testutil.TestKeyID,
		PublicKey: &key.PublicKey,
	})
	return verifier.New(verifier.Config{
		Issuer:   testIssuer,
		Audience: testAudience,
	}, resolver, nil)
}

func TestVerify_ValidToken(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	token := testutil.SignToken(t, testutil.SigningKey(t), testutil.TokenSpec{
		Subject:  "user-123",
		Scope:    "openid profile",
		Issuer:   testIssuer,
		Audience: testAudience,
	})

	claims, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected subject 'user-123', got %q", claims.Subject)
	}
	if claims.Scope != "openid profile" {
		t.Errorf("expected scope 'openid profile', got %q", claims.Scope)
	}
	if claims.KeyID != testutil.TestKeyID {
		t.Errorf("expected kid %q, got %q", testutil.TestKeyID, claims.KeyID)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	token := testutil.SignToken(t, testutil.SigningKey(t), testutil.TokenSpec{
		Subject:  "user-123",
		Issuer:   testIssuer,
		Audience: testAudience,
		Lifetime: -time.Minute,
	})

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, verifier.ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerify_ExpiredWithinTolerance(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	// expired one second ago, within the two-second clock tolerance
	token := testutil.SignToken(t, testutil.SigningKey(t), testutil.TokenSpec{
		Subject:  "user-123",
		Issuer:   testIssuer,
		Audience: testAudience,
		Lifetime: -time.Second,
	})

	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Errorf("expected token within tolerance to verify, got %v", err)
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	token := testutil.SignToken(t, testutil.SigningKey(t), testutil.TokenSpec{
		Subject:  "user-123",
		Issuer:   "https://evil.example.com/",
		Audience: testAudience,
	})

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, verifier.ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	token := testutil.SignToken(t, testutil.SigningKey(t), testutil.TokenSpec{
		Subject:  "user-123",
		Issuer:   testIssuer,
		Audience: "https://other.example.com",
	})

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, verifier.ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerify_SymmetricAlgorithmRejected(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	// HS256 token keyed on public material; the header-selected algorithm
	// must never drive verification.
	claims := jwt.MapClaims{
		"sub": "user-123",
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = testutil.TestKeyID
	signed, err := token.SignedString([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}

	if _, err := v.Verify(context.Background(), signed); !errors.Is(err, verifier.ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerify_UnknownKeyID(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	token := testutil.SignToken(t, testutil.SigningKey(t), testutil.TokenSpec{
		KeyID:    "unknown-key",
		Subject:  "user-123",
		Issuer:   testIssuer,
		Audience: testAudience,
	})

	if _, err := v.Verify(context.Background(), token); !errors.Is(err, verifier.ErrVerificationFailed) {
		t.Errorf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := v.Verify(context.Background(), token); !errors.Is(err, verifier.ErrVerificationFailed) {
			t.Errorf("token %q: expected ErrVerificationFailed, got %v", token, err)
		}
	}
}
