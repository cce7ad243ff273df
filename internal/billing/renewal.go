package billing

import (
	"context"
	"fmt"

	"github.com/okian/pepai/internal/adapters/repository"
)

// Renewal reports a simulated renewal.
type Renewal struct {
	PaymentID string             `json:"paymentId" yaml:"paymentId"`
	Outcome   Outcome            `json:"outcome" yaml:"outcome"`
	Before    repository.Profile `json:"before" yaml:"before"`
	After     repository.Profile `json:"after" yaml:"after"`
}

// SimulateRenewal records a succeeded payment for uid, as the provider does
// on a subscription renewal, and processes it.
func (s *Service) SimulateRenewal(ctx context.Context, uid string) (Renewal, error) {
	before, err := s.store.GetProfile(ctx, uid)
	if err != nil {
		return Renewal{}, fmt.Errorf("profile %s: %w", uid, err)
	}

	now := s.now()
	pay := repository.Payment{
		ID:        fmt.Sprintf("test_renewal_%d", now.UnixMilli()),
		UID:       uid,
		Status:    repository.StatusSucceeded,
		Amount:    2000,
		Currency:  "usd",
		CreatedAt: now,
	}
	if err := s.store.PutPayment(ctx, pay); err != nil {
		return Renewal{}, err
	}
	out, err := s.ApplyPayment(ctx, pay)
	if err != nil {
		return Renewal{}, err
	}

	after, err := s.store.GetProfile(ctx, uid)
	if err != nil {
		return Renewal{}, err
	}
	return Renewal{PaymentID: pay.ID, Outcome: out, Before: before, After: after}, nil
}
