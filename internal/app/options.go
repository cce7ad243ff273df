package service

import (
	"time"

	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/internal/voice"
	"github.com/okian/pepai/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore uses st instead of opening the configured driver. The caller
// keeps ownership and closes it.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithModel replaces the Gemini generation model.
func WithModel(m generate.Model) Option {
	return func(s *Service) { s.model = m }
}

// WithDialer replaces the Gemini live dialer.
func WithDialer(d voice.Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
