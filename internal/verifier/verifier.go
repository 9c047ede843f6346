// Package verifier validates signed bearer tokens against a rotating key
// set. Signature, issuer, audience, and expiry are all checked; callers see
// a single undifferentiated failure so that no detail about which check
// failed crosses the trust boundary.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/hail-is/auth-gateway/internal/keyset"
)

// ErrVerificationFailed is the only error Verify returns. The underlying
// cause is logged for operators and never exposed to callers.
var ErrVerificationFailed = errors.New("verifier: verification failed")

// Tokens must be asymmetrically signed. A symmetric algorithm in the token
// header is never accepted, even when the header asks for one.
var allowedAlgorithms = []string{jwt.SigningMethodRS256.Name}

// defaultClockTolerance absorbs small clock drift between the issuer and
// this verifier when checking expiry.
const defaultClockTolerance = 2 * time.Second

// Claims is the verified content of a token. Never constructed from
// unverified input.
type Claims struct {
	Subject   string
	Scope     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	KeyID     string
}

type tokenClaims struct {
	Scope string `json:"scope"`

	jwt.RegisteredClaims
}

// Config for a Verifier. Issuer and Audience are compared exactly against
// the token's claims; ClockTolerance defaults to two seconds when zero.
type Config struct {
	Issuer         string
	Audience       string
	ClockTolerance time.Duration
}

type Verifier struct {
	resolver keyset.Resolver
	parser   *jwt.Parser
	logger   *zap.Logger
}

func New(cfg Config, resolver keyset.Resolver, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	tolerance := cfg.ClockTolerance
	if tolerance == 0 {
		tolerance = defaultClockTolerance
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(allowedAlgorithms),
		jwt.WithLeeway(tolerance),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
	)

	return &Verifier{
		resolver: resolver,
		parser:   parser,
		logger:   logger,
	}
}

// Verify checks the token end to end and returns its claims. Any failure,
// including key resolution, yields ErrVerificationFailed.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	parsed, err := v.parser.ParseWithClaims(token, &tokenClaims{}, v.keyFunc(ctx))
	if err != nil {
		v.logger.Warn("token verification failed", zap.Error(err))
		return nil, ErrVerificationFailed
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		v.logger.Warn("token verification failed", zap.String("cause", "claims not usable"))
		return nil, ErrVerificationFailed
	}

	keyID, _ := parsed.Header["kid"].(string)

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &Claims{
		Subject:   claims.Subject,
		Scope:     claims.Scope,
		Issuer:    claims.Issuer,
		Audience:  claims.Audience,
		ExpiresAt: expiresAt,
		KeyID:     keyID,
	}, nil
}

// keyFunc resolves the verification key named by the token's unverified
// header. The kid is the only header field trusted before verification, and
// only as a cache lookup hint.
func (v *Verifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		key, err := v.resolver.Key(ctx, kid)
		if err != nil {
			return nil, err
		}
		return key.PublicKey, nil
	}
}
