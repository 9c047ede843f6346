package keyset

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	KeyType string `json:"kty"`
	KeyID   string `json:"kid"`
	Use     string `json:"use"`
	Modulus string `json:"n"`
	Exp     string `json:"e"`
}

// parseKeySet decodes a JWKS document into signing keys keyed by kid.
// Entries without a kid are dropped: a key that can't be attributed to a
// specific key id must never be served. Non-RSA entries are dropped too,
// since verification is restricted to RS256.
func parseKeySet(data []byte) (map[string]*SigningKey, error) {
	var doc jwksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid jwks json: %v", err)
	}

	keys := make(map[string]*SigningKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.KeyID == "" || k.KeyType != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k)
		if err != nil {
			return nil, fmt.Errorf("jwk %q: %v", k.KeyID, err)
		}
		keys[k.KeyID] = &SigningKey{KeyID: k.KeyID, PublicKey: pub}
	}
	return keys, nil
}

func parseRSAKey(k jwk) (*rsa.PublicKey, error) {
	if k.Modulus == "" || k.Exp == "" {
		return nil, fmt.Errorf("missing n/e")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 modulus: %v", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.Exp)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 exponent: %v", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, fmt.Errorf("zero exponent")
	}

	n := new(big.Int).SetBytes(nBytes)
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("invalid modulus")
	}

	return &rsa.PublicKey{N: n, E: e}, nil
}
