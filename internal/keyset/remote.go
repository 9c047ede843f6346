package keyset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// Matches the fetch budget the well-known endpoint is provisioned for:
	// a flood of unknown-kid probes must not turn into a fetch flood.
	fetchesPerMinute = 5

	fetchTimeout = 10 * time.Second
	retryBackoff = 250 * time.Millisecond
	maxBodySize  = 1 << 20
)

// RemoteResolver fetches keys from a JWKS endpoint and caches the full
// result set, since key-set responses enumerate every currently valid key.
// Fetches are rate limited; cached keys are always served regardless of the
// limiter state.
type RemoteResolver struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	// serializes cache fills so concurrent misses for the same kid
	// coalesce into one fetch
	fetchMu sync.Mutex

	mu   sync.RWMutex
	keys map[string]*SigningKey
}

type RemoteOption func(*RemoteResolver)

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteResolver) { r.client = c }
}

func WithLogger(l *zap.Logger) RemoteOption {
	return func(r *RemoteResolver) { r.logger = l }
}

func NewRemoteResolver(url string, opts ...RemoteOption) *RemoteResolver {
	r := &RemoteResolver{
		url:     url,
		client:  &http.Client{Timeout: fetchTimeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/fetchesPerMinute), fetchesPerMinute),
		logger:  zap.NewNop(),
		keys:    make(map[string]*SigningKey),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteResolver) Key(ctx context.Context, keyID string) (*SigningKey, error) {
	if key := r.cached(keyID); key != nil {
		return key, nil
	}

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()

	// another caller may have filled the cache while we waited
	if key := r.cached(keyID); key != nil {
		return key, nil
	}

	if !r.limiter.Allow() {
		r.logger.Warn("jwks fetch rate limit exceeded", zap.String("kid", keyID))
		return nil, ErrRateLimited
	}

	keys, err := r.fetch(ctx)
	if err != nil {
		r.logger.Error("jwks fetch failed", zap.String("url", r.url), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrKeyFetch, err)
	}

	r.mu.Lock()
	r.keys = keys
	r.mu.Unlock()

	key, ok := keys[keyID]
	if !ok {
		r.logger.Warn("kid not present in fetched key set", zap.String("kid", keyID))
		return nil, ErrUnknownKey
	}
	return key, nil
}

func (r *RemoteResolver) cached(keyID string) *SigningKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[keyID]
}

// fetch retrieves and parses the key set. Transport errors get one retry
// after a short backoff; a reachable endpoint answering non-2xx is treated
// as structural and not retried.
func (r *RemoteResolver) fetch(ctx context.Context) (map[string]*SigningKey, error) {
	body, err := r.get(ctx)
	if err != nil {
		var netErr *transportError
		if !errors.As(err, &netErr) {
			return nil, err
		}
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if body, err = r.get(ctx); err != nil {
			return nil, err
		}
	}
	return parseKeySet(body)
}

type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (r *RemoteResolver) get(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &transportError{err: err}
	}
	return body, nil
}
