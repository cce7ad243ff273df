package repository

import (
	"time"

	"github.com/okian/pepai/pkg/logger"
)

type options struct {
	now    func() time.Time
	logger logger.Logger
}

// Option configures a store.
type Option func(*options)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Named(name)
	}
	return o
}
