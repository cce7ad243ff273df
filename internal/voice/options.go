package voice

import "github.com/okian/pepai/pkg/logger"

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}
