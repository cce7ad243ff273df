package billing

import (
	"time"

	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/pkg/logger"
)

// Option configures a Service.
type Option func(*Service)

// WithEnforcement turns balance and capability checks on or off.
func WithEnforcement(on bool) Option {
	return func(s *Service) { s.enforce = on }
}

// WithCost sets the price of one paid action in c.
func WithCost(c repository.Currency, amount int) Option {
	return func(s *Service) {
		if amount > 0 {
			s.costs[c] = amount
		}
	}
}

// WithDefaultCredits sets the balance new profiles start with.
func WithDefaultCredits(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.defaultCredits = n
		}
	}
}

// WithReturnURL sets where checkout sends the user back to.
func WithReturnURL(u string) Option {
	return func(s *Service) { s.returnURL = u }
}

// WithCheckoutTimeout bounds the wait for a checkout URL.
func WithCheckoutTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.checkoutTimeout = d
		}
	}
}

// WithPollInterval sets how often a pending checkout is re-read.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}
