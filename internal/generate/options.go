package generate

import (
	"context"
	"time"

	"github.com/okian/pepai/pkg/logger"
)

// Option configures a Requester.
type Option func(*Requester)

// WithMaxAttempts bounds attempts per request (first try plus retries).
func WithMaxAttempts(n int) Option {
	return func(r *Requester) {
		r.maxAttempts = n
	}
}

// WithBackoff sets the first retry delay and the maximum random jitter.
func WithBackoff(base, jitter time.Duration) Option {
	return func(r *Requester) {
		r.base = base
		r.jitter = jitter
	}
}

// WithSleep replaces the delay function, for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Requester) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

// WithRandom replaces the jitter source; fn returns values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(r *Requester) {
		if fn != nil {
			r.random = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Requester) {
		if l != nil {
			r.logger = l
		}
	}
}
