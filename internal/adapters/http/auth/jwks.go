package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/okian/pepai/pkg/logger"
)

// JWKS fetches signing keys from a JWKS endpoint and refetches when an
// unknown key id appears, at most once per minRefresh.
type JWKS struct {
	url        string
	minRefresh time.Duration
	timeout    time.Duration
	logger     logger.Logger

	mu          sync.RWMutex
	set         jwk.Set
	lastRefresh time.Time
}

// NewJWKS returns a key source for url. Keys are fetched lazily.
func NewJWKS(url string, opts ...JWKSOption) *JWKS {
	j := &JWKS{url: url, minRefresh: time.Minute, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(j)
	}
	if j.logger == nil {
		j.logger = logger.Named("auth.jwks")
	}
	return j
}

// Refresh fetches the key set now.
func (j *JWKS) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	set, err := jwk.Fetch(ctx, j.url)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	j.mu.Lock()
	j.set = set
	j.lastRefresh = time.Now()
	j.mu.Unlock()
	j.logger.Debug(ctx, "jwks refreshed", logger.Int("keys", set.Len()))
	return nil
}

// Key implements KeySource.
func (j *JWKS) Key(ctx context.Context, kid string) (any, error) {
	j.mu.RLock()
	set, last := j.set, j.lastRefresh
	j.mu.RUnlock()

	key, err := lookup(set, kid)
	if err == nil {
		return key, nil
	}
	if !last.IsZero() && time.Since(last) < j.minRefresh {
		return nil, err
	}
	if err := j.Refresh(ctx); err != nil {
		j.logger.Error(ctx, "jwks refresh failed", logger.Error(err))
		return nil, err
	}
	j.mu.RLock()
	set = j.set
	j.mu.RUnlock()
	return lookup(set, kid)
}

// StaticKeys serves a fixed key set.
type StaticKeys struct{ Set jwk.Set }

// Key implements KeySource.
func (s StaticKeys) Key(_ context.Context, kid string) (any, error) {
	return lookup(s.Set, kid)
}

func lookup(set jwk.Set, kid string) (any, error) {
	if set == nil {
		return nil, ErrNoKeys
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("export key %s: %w", kid, err)
	}
	return raw, nil
}
