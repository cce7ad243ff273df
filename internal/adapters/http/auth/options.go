package auth

import (
	"time"

	"github.com/okian/pepai/pkg/logger"
)

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// JWKSOption configures a JWKS source.
type JWKSOption func(*JWKS)

// WithMinRefresh limits how often unknown key ids trigger a refetch.
func WithMinRefresh(d time.Duration) JWKSOption {
	return func(j *JWKS) { j.minRefresh = d }
}

// WithFetchTimeout bounds one JWKS fetch.
func WithFetchTimeout(d time.Duration) JWKSOption {
	return func(j *JWKS) {
		if d > 0 {
			j.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) JWKSOption {
	return func(j *JWKS) { j.logger = l }
}
