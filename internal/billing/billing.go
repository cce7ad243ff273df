// Package billing charges paid actions against a user's credits or pep
// points and applies the payment provider's subscription and payment
// documents to profiles.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

// Store is the persistence billing needs.
type Store interface {
	repository.Profiles
	repository.Catalog
	repository.Customers
}

// Capability is a plan flag gating a feature.
type Capability string

const (
	CanSave   Capability = "can_save"
	CanExport Capability = "can_export"
)

// Account is a profile as the client sees it.
type Account struct {
	repository.Profile
	SubscriptionStatus string `json:"subscriptionStatus"`
}

// Service applies billing rules.
type Service struct {
	store           Store
	enforce         bool
	costs           map[repository.Currency]int
	defaultCredits  int
	returnURL       string
	checkoutTimeout time.Duration
	pollInterval    time.Duration
	now             func() time.Time
	logger          logger.Logger
}

// New returns a Service. Enforcement is off unless WithEnforcement(true).
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:           store,
		costs:           map[repository.Currency]int{repository.Credits: 5, repository.PepPoints: 1},
		defaultCredits:  10,
		checkoutTimeout: 30 * time.Second,
		pollInterval:    500 * time.Millisecond,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("billing")
	}
	return s
}

// Enforced reports whether paid actions are charged.
func (s *Service) Enforced() bool { return s.enforce }

// Cost returns the price of one paid action in c.
func (s *Service) Cost(c repository.Currency) int { return s.costs[c] }

// Account returns uid's profile, creating it on first sight.
func (s *Service) Account(ctx context.Context, uid, email string) (Account, error) {
	if uid == "" {
		return Account{}, ErrUnauthenticated
	}
	p, err := s.store.EnsureProfile(ctx, uid, email, s.defaultCredits)
	if err != nil {
		return Account{}, err
	}
	acct := Account{Profile: p, SubscriptionStatus: "none"}
	_, err = s.store.FindSubscription(ctx, uid, repository.StatusActive, repository.StatusTrialing)
	switch {
	case err == nil:
		acct.SubscriptionStatus = repository.StatusActive
	case !errors.Is(err, repository.ErrNotFound):
		return Account{}, err
	}
	return acct, nil
}

// Charge takes the cost of one paid action from c. It is a no-op when
// enforcement is off.
func (s *Service) Charge(ctx context.Context, uid string, c repository.Currency) (repository.Profile, error) {
	if !s.enforce {
		return repository.Profile{}, nil
	}
	if uid == "" {
		return repository.Profile{}, ErrUnauthenticated
	}
	if !c.Valid() {
		return repository.Profile{}, ErrInvalidCurrency
	}
	if _, err := s.store.EnsureProfile(ctx, uid, "", s.defaultCredits); err != nil {
		return repository.Profile{}, err
	}

	cost := s.costs[c]
	p, err := s.store.Deduct(ctx, uid, c, cost)
	if errors.Is(err, repository.ErrInsufficientFunds) {
		metrics.RecordInsufficientBalance(string(c))
		s.logger.Info(ctx, "insufficient balance",
			logger.String("uid", uid), logger.String("currency", string(c)),
			logger.Int("balance", p.Balance(c)), logger.Int("cost", cost))
		return p, fmt.Errorf("%w: %d %s needed, %d available", ErrInsufficientBalance, cost, c, p.Balance(c))
	}
	if err != nil {
		return repository.Profile{}, err
	}
	metrics.RecordBillingDeduction(string(c))
	s.logger.Debug(ctx, "charged", logger.String("uid", uid), logger.String("currency", string(c)), logger.Int("cost", cost))
	return p, nil
}

// Refund returns a charge for an action that did not complete.
func (s *Service) Refund(ctx context.Context, uid string, c repository.Currency) error {
	if !s.enforce || uid == "" || !c.Valid() {
		return nil
	}
	cost := s.costs[c]
	_, err := s.store.UpdateProfile(ctx, uid, func(p *repository.Profile) error {
		if c == repository.PepPoints {
			p.PepPoints += cost
		} else {
			p.Credits += cost
		}
		p.LastUpdated = s.now()
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "refund failed", logger.String("uid", uid), logger.String("currency", string(c)), logger.Error(err))
		return err
	}
	metrics.RecordBillingEvent("refund", "applied")
	return nil
}

// Require checks that uid's plan includes capability.
func (s *Service) Require(ctx context.Context, uid string, capability Capability) error {
	if !s.enforce {
		return nil
	}
	if uid == "" {
		return ErrUnauthenticated
	}
	p, err := s.store.EnsureProfile(ctx, uid, "", s.defaultCredits)
	if err != nil {
		return err
	}
	allowed := p.CanSave
	if capability == CanExport {
		allowed = p.CanExport
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, capability)
	}
	return nil
}

// Products lists the active catalog.
func (s *Service) Products(ctx context.Context) ([]repository.Product, error) {
	return s.store.ActiveProducts(ctx)
}
