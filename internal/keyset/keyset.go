// Package keyset resolves the asymmetric public keys an issuer uses to sign
// tokens. Keys are identified by key id ("kid") and published as a JSON Web
// Key Set, either at the issuer's well-known endpoint or mirrored to a local
// file.
package keyset

import (
	"context"
	"crypto/rsa"
	"errors"
)

var (
	ErrKeyFetch    = errors.New("keyset: fetch failed")
	ErrUnknownKey  = errors.New("keyset: unknown key id")
	ErrRateLimited = errors.New("keyset: fetch rate limit exceeded")
)

// SigningKey is one public key from an issuer's key set. Instances are
// immutable once constructed; rotation replaces the whole set rather than
// mutating entries.
type SigningKey struct {
	KeyID     string
	PublicKey *rsa.PublicKey
}

// Resolver maps a key id to its signing key. Implementations must never
// return a key under a kid it was not published with, and must fail hard
// (rather than fall back to a stale or guessed key) when resolution fails.
type Resolver interface {
	Key(ctx context.Context, keyID string) (*SigningKey, error)
}

// StaticResolver serves a fixed set of keys. Used for bootstrap
// configurations and tests.
type StaticResolver struct {
	keys map[string]*SigningKey
}

func NewStaticResolver(keys ...*SigningKey) *StaticResolver {
	m := make(map[string]*SigningKey, len(keys))
	for _, k := range keys {
		m[k.KeyID] = k
	}
	return &StaticResolver{keys: m}
}

func (r *StaticResolver) Key(_ context.Context, keyID string) (*SigningKey, error) {
	key, ok := r.keys[keyID]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}
