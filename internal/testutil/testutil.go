// Package testutil provides shared fixtures for package tests: a cached
// signing key, token minting, and a JWKS endpoint stub.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestKeyID is the kid the shared signing key is published under.
const TestKeyID = "test-key-1"

var (
	sharedSigningKey     *rsa.PrivateKey
	sharedSigningKeyOnce sync.Once
)

// SigningKey returns a cached RSA signing key for tests. Generating RSA
// keys is slow, so one key is shared across all tests.
func SigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	sharedSigningKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic("failed to generate shared signing key: " + err.Error())
		}
		sharedSigningKey = key
	})
	return sharedSigningKey
}

// TokenSpec describes a token to mint for a test. Zero-value KeyID and
// Lifetime fall back to defaults; Lifetime may be negative to mint an
// already-expired token.
type TokenSpec struct {
	KeyID    string
	Subject  string
	Scope    string
	Issuer   string
	Audience string
	Lifetime time.Duration
}

// SignToken mints an RS256 token signed by key.
func SignToken(t *testing.T, key *rsa.PrivateKey, spec TokenSpec) string {
	t.Helper()

	if spec.KeyID == "" {
		spec.KeyID = TestKeyID
	}
	if spec.Lifetime == 0 {
		spec.Lifetime = time.Hour
	}

	claims := jwt.MapClaims{
		"sub": spec.Subject,
		"iss": spec.Issuer,
		"aud": spec.Audience,
		"exp": time.Now().Add(spec.Lifetime).Unix(),
		"iat": time.Now().Unix(),
	}
	if spec.Scope != "" {
		claims["scope"] = spec.Scope
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = spec.KeyID

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// SignProfileToken mints a token whose payload carries identity-profile
// claims, for exercising unverified client-side decoding.
func SignProfileToken(t *testing.T, key *rsa.PrivateKey, profile map[string]any) string {
	t.Helper()

	claims := jwt.MapClaims{}
	for k, v := range profile {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = TestKeyID

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// JWKSHandler serves public keys as a JWKS document and counts fetches.
type JWKSHandler struct {
	mu    sync.Mutex
	keys  map[string]*rsa.PublicKey
	count int
}

func NewJWKSHandler(keys map[string]*rsa.PublicKey) *JWKSHandler {
	return &JWKSHandler{keys: keys}
}

// SetKeys replaces the served key set, simulating rotation.
func (h *JWKSHandler) SetKeys(keys map[string]*rsa.PublicKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = keys
}

// FetchCount reports how many requests the handler has served.
func (h *JWKSHandler) FetchCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *JWKSHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.count++
	keys := h.keys
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(JWKSDocument(keys))
}

// JWKSDocument builds the JSON structure of a key set from RSA public
// keys.
func JWKSDocument(keys map[string]*rsa.PublicKey) map[string]any {
	list := make([]map[string]string, 0, len(keys))
	for kid, key := range keys {
		list = append(list, map[string]string{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": kid,
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		})
	}
	return map[string]any{"keys": list}
}
