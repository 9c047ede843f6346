// Package credential locates a single bearer credential in an HTTP request.
//
// A credential may arrive in exactly one of two carriers: the Authorization
// header ("Bearer <token>") or the Cookie header ("access_token=<token>").
// A request presenting both is rejected as ambiguous rather than picking a
// winner, and tokens in the query string are never accepted since they leak
// into logs and Referer headers.
package credential

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrNoCredential means the request is simply unauthenticated.
	ErrNoCredential = errors.New("credential: none present")

	// ErrQueryCredential means an access token was passed as a query
	// parameter, which is never accepted.
	ErrQueryCredential = errors.New("credential: token in query string")

	// ErrAmbiguousCredential means more than one carrier held a token.
	ErrAmbiguousCredential = errors.New("credential: more than one token carrier")

	// ErrMalformedCredential means a carrier was present but its token
	// could not be parsed.
	ErrMalformedCredential = errors.New("credential: malformed token")
)

const (
	bearerPrefix = "Bearer "
	cookiePrefix = "access_token="
)

// Extractor pulls bearer credentials out of requests. All failures
// normalize to "no credential" at the endpoint; the distinct errors exist
// for diagnostics only.
type Extractor struct {
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// FromRequest returns the single credential carried by r, or an error
// describing why none could be extracted.
func (e *Extractor) FromRequest(r *http.Request) (string, error) {
	if r.URL.Query().Get("access_token") != "" {
		e.logger.Warn("access token passed as query parameter",
			zap.String("origin", r.Header.Get("Origin")))
		return "", ErrQueryCredential
	}

	authHeader := r.Header.Get("Authorization")
	cookieHeader := r.Header.Get("Cookie")

	bearerIdx := strings.Index(authHeader, bearerPrefix)
	cookieIdx := strings.Index(cookieHeader, cookiePrefix)

	if bearerIdx == -1 && cookieIdx == -1 {
		return "", ErrNoCredential
	}

	if bearerIdx > -1 && cookieIdx > -1 {
		// never pick a winner between carriers
		e.logger.Warn("request specified more than one access token",
			zap.String("origin", r.Header.Get("Origin")))
		return "", ErrAmbiguousCredential
	}

	if bearerIdx > -1 {
		token := authHeader[bearerIdx+len(bearerPrefix):]
		if token == "" {
			return "", ErrNoCredential
		}
		return token, nil
	}

	return parseCookieToken(cookieHeader[cookieIdx+len(cookiePrefix):])
}

// parseCookieToken finds the end of a token inside a raw Cookie header.
//
// The cookie grammar is ambiguous about separators, so the accepted rule is
// narrow: the token runs to the first space, and
// that space must be immediately preceded by ';' or ',' (the two valid
// cookie-pair separators) for the parse to be accepted. A space anywhere
// else means the value is malformed. Tokens containing internal spaces
// would be false negatives under this rule; do not relax it without
// confirming token format guarantees.
func parseCookieToken(value string) (string, error) {
	if value == "" {
		return "", ErrNoCredential
	}

	spaceIdx := strings.IndexByte(value, ' ')
	if spaceIdx == -1 {
		return value, nil
	}

	if spaceIdx == 0 || (value[spaceIdx-1] != ';' && value[spaceIdx-1] != ',') {
		return "", ErrMalformedCredential
	}

	return value[:spaceIdx-1], nil
}
