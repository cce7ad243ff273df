package billing

import (
	"context"
	"fmt"

	"github.com/okian/pepai/internal/adapters/repository"
)

// RecordSubscription mirrors a provider subscription and applies it.
func (s *Service) RecordSubscription(ctx context.Context, sub repository.Subscription) (Outcome, error) {
	if sub.UID == "" || sub.ID == "" {
		return Skipped, fmt.Errorf("%w: subscription needs uid and id", ErrMissingField)
	}
	if err := s.store.PutSubscription(ctx, sub); err != nil {
		return Skipped, err
	}
	return s.ApplySubscription(ctx, sub)
}

// RecordPayment mirrors a provider payment and applies it.
func (s *Service) RecordPayment(ctx context.Context, pay repository.Payment) (Outcome, error) {
	if pay.UID == "" || pay.ID == "" {
		return Skipped, fmt.Errorf("%w: payment needs uid and id", ErrMissingField)
	}
	if pay.CreatedAt.IsZero() {
		pay.CreatedAt = s.now()
	}
	if err := s.store.PutPayment(ctx, pay); err != nil {
		return Skipped, err
	}
	return s.ApplyPayment(ctx, pay)
}

// RecordProduct mirrors a catalog product with its prices.
func (s *Service) RecordProduct(ctx context.Context, p repository.Product) error {
	if p.ID == "" {
		return fmt.Errorf("%w: product needs an id", ErrMissingField)
	}
	return s.store.PutProduct(ctx, p)
}

// CompleteCheckout attaches the provider's redirect URL, or its error, to a
// pending checkout session.
func (s *Service) CompleteCheckout(ctx context.Context, uid, id, url, errMsg string) error {
	if uid == "" || id == "" {
		return fmt.Errorf("%w: checkout needs uid and id", ErrMissingField)
	}
	cs, err := s.store.GetCheckoutSession(ctx, uid, id)
	if err != nil {
		return err
	}
	cs.URL = url
	cs.Error = errMsg
	return s.store.UpdateCheckoutSession(ctx, cs)
}
