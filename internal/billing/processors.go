package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

// Outcome says what a processor did with a provider document.
type Outcome string

const (
	// Skipped documents are valid but grant nothing.
	Skipped Outcome = "skipped"
	// GrantedCredits set the credit balance.
	GrantedCredits Outcome = "credits"
	// GrantedPepPoints added pep points.
	GrantedPepPoints Outcome = "pepPoints"
	// GrantedPlan set credits and plan flags from a subscription.
	GrantedPlan Outcome = "plan"
)

// plan is what a product's metadata grants.
type plan struct {
	credits   int
	pepPoints int
	canSave   bool
	canExport bool
	tier      string
}

func planOf(p repository.Product) plan {
	tier := p.Metadata["tier"]
	if tier == "" {
		tier = repository.DefaultTier
	}
	return plan{
		credits:   count(p.Metadata["credits"]),
		pepPoints: count(p.Metadata["pepPoints"]),
		canSave:   p.Metadata["can_save"] == "true",
		canExport: p.Metadata["can_export"] == "true",
		tier:      tier,
	}
}

// count parses the leading integer of s. Anything else is zero.
func count(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// ApplySubscription handles a written subscription. Active and trialing
// subscriptions set the product's credits and plan flags and add its pep
// points.
func (s *Service) ApplySubscription(ctx context.Context, sub repository.Subscription) (out Outcome, err error) {
	defer func() { s.record(ctx, "subscription", sub.UID, out, err) }()

	if sub.UID == "" {
		return Skipped, ErrUnauthenticated
	}
	if sub.Status != repository.StatusActive && sub.Status != repository.StatusTrialing {
		return Skipped, nil
	}
	if sub.ProductID == "" {
		s.logger.Warn(ctx, "subscription without product", logger.String("uid", sub.UID), logger.String("subscription", sub.ID))
		return Skipped, nil
	}
	product, err := s.store.GetProduct(ctx, sub.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn(ctx, "subscription product not found", logger.String("product", sub.ProductID))
		return Skipped, nil
	}
	if err != nil {
		return Skipped, err
	}

	pl := planOf(product)
	if pl.credits == 0 && pl.pepPoints == 0 {
		return Skipped, nil
	}
	_, err = s.store.UpdateProfile(ctx, sub.UID, func(p *repository.Profile) error {
		p.Credits = pl.credits
		p.CanSave = pl.canSave
		p.CanExport = pl.canExport
		p.Tier = pl.tier
		p.LastUpdated = s.now()
		if pl.pepPoints > 0 {
			p.PepPoints += pl.pepPoints
		}
		return nil
	})
	if err != nil {
		return Skipped, fmt.Errorf("apply subscription %s: %w", sub.ID, err)
	}
	return GrantedPlan, nil
}

// ApplyPayment handles a created payment. In order of precedence, pep
// points in the payment's metadata, credits in its metadata, pep points on
// its product, and finally the active subscription's credits are granted.
func (s *Service) ApplyPayment(ctx context.Context, pay repository.Payment) (out Outcome, err error) {
	defer func() { s.record(ctx, "payment", pay.UID, out, err) }()

	if pay.UID == "" {
		return Skipped, ErrUnauthenticated
	}
	if pay.Status != repository.StatusSucceeded {
		return Skipped, nil
	}

	if n := count(pay.Metadata["pepPoints"]); n > 0 {
		return s.addPepPoints(ctx, pay.UID, n)
	}
	if n := count(pay.Metadata["credits"]); n > 0 {
		return s.refill(ctx, pay.UID, n)
	}
	if pay.ProductID != "" {
		product, err := s.store.GetProduct(ctx, pay.ProductID)
		switch {
		case err == nil:
			if n := count(product.Metadata["pepPoints"]); n > 0 {
				return s.addPepPoints(ctx, pay.UID, n)
			}
		case !errors.Is(err, repository.ErrNotFound):
			return Skipped, err
		}
	}

	// A renewal: refill from the subscription's product.
	sub, err := s.store.FindSubscription(ctx, pay.UID, repository.StatusActive)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info(ctx, "payment without active subscription", logger.String("uid", pay.UID), logger.String("payment", pay.ID))
		return Skipped, nil
	}
	if err != nil {
		return Skipped, err
	}
	if sub.ProductID == "" {
		return Skipped, nil
	}
	product, err := s.store.GetProduct(ctx, sub.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		return Skipped, nil
	}
	if err != nil {
		return Skipped, err
	}
	if n := planOf(product).credits; n > 0 {
		return s.refill(ctx, pay.UID, n)
	}
	return Skipped, nil
}

func (s *Service) addPepPoints(ctx context.Context, uid string, n int) (Outcome, error) {
	_, err := s.store.UpdateProfile(ctx, uid, func(p *repository.Profile) error {
		p.PepPoints += n
		p.LastPointsPurchase = s.now()
		return nil
	})
	if err != nil {
		return Skipped, err
	}
	return GrantedPepPoints, nil
}

func (s *Service) refill(ctx context.Context, uid string, n int) (Outcome, error) {
	_, err := s.store.UpdateProfile(ctx, uid, func(p *repository.Profile) error {
		p.Credits = n
		p.LastRefill = s.now()
		return nil
	})
	if err != nil {
		return Skipped, err
	}
	return GrantedCredits, nil
}

func (s *Service) record(ctx context.Context, kind, uid string, out Outcome, err error) {
	if err != nil {
		metrics.RecordBillingEvent(kind, "error")
		metrics.RecordErrorByComponent("billing", kind)
		s.logger.Error(ctx, "billing event failed", logger.String("kind", kind), logger.String("uid", uid), logger.Error(err))
		return
	}
	metrics.RecordBillingEvent(kind, string(out))
	s.logger.Info(ctx, "billing event processed", logger.String("kind", kind), logger.String("uid", uid), logger.String("outcome", string(out)))
}
