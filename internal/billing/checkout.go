package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/pkg/logger"
)

// CheckoutRequest starts a purchase of one price.
type CheckoutRequest struct {
	Price    string            `json:"price"`
	Mode     string            `json:"mode"`
	Metadata map[string]string `json:"metadata"`
}

// Checkout records a checkout session for the payment provider and waits
// until the provider attaches a redirect URL or an error.
func (s *Service) Checkout(ctx context.Context, uid string, req CheckoutRequest) (string, error) {
	if uid == "" {
		return "", ErrUnauthenticated
	}
	if req.Price == "" {
		return "", ErrMissingPrice
	}
	mode := req.Mode
	if mode != repository.ModePayment {
		mode = repository.ModeSubscription
	}
	md := req.Metadata
	if md == nil {
		md = map[string]string{}
	}

	cs, err := s.store.CreateCheckoutSession(ctx, repository.CheckoutSession{
		UID:        uid,
		Price:      req.Price,
		Mode:       mode,
		Metadata:   md,
		SuccessURL: s.returnURL,
		CancelURL:  s.returnURL,
	})
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "checkout session created",
		logger.String("uid", uid), logger.String("session", cs.ID), logger.String("mode", mode))

	ctx, cancel := context.WithTimeout(ctx, s.checkoutTimeout)
	defer cancel()
	tick := time.NewTicker(s.pollInterval)
	defer tick.Stop()

	for {
		cur, err := s.store.GetCheckoutSession(ctx, uid, cs.ID)
		switch {
		case err == nil && cur.URL != "":
			return cur.URL, nil
		case err == nil && cur.Error != "":
			return "", fmt.Errorf("%w: %s", ErrCheckoutFailed, cur.Error)
		case err != nil && !errors.Is(err, context.DeadlineExceeded):
			return "", err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrCheckoutTimeout
			}
			return "", ctx.Err()
		case <-tick.C:
		}
	}
}
