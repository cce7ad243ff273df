package repository

import (
	"time"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
)

// SavedDrill is a history entry: a drill owned by a user.
type SavedDrill struct {
	drill.Drill
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Currency is one of the two balances on a profile.
type Currency string

const (
	Credits   Currency = "credits"
	PepPoints Currency = "pepPoints"
)

// Valid reports whether c is a known balance.
func (c Currency) Valid() bool { return c == Credits || c == PepPoints }

// Profile is a user's billing record.
type Profile struct {
	UID                string    `json:"uid" firestore:"-"`
	Email              string    `json:"email" firestore:"email"`
	Credits            int       `json:"credits" firestore:"credits"`
	PepPoints          int       `json:"pepPoints" firestore:"pepPoints"`
	CanSave            bool      `json:"can_save" firestore:"can_save"`
	CanExport          bool      `json:"can_export" firestore:"can_export"`
	Tier               string    `json:"tier" firestore:"tier"`
	StripeCustomerID   string    `json:"stripeCustomerId" firestore:"stripeCustomerId"`
	CreatedAt          time.Time `json:"createdAt" firestore:"createdAt"`
	LastUpdated        time.Time `json:"lastUpdated,omitzero" firestore:"lastUpdated,omitempty"`
	LastRefill         time.Time `json:"lastRefill,omitzero" firestore:"lastRefill,omitempty"`
	LastPointsPurchase time.Time `json:"lastPointsPurchase,omitzero" firestore:"lastPointsPurchase,omitempty"`
}

// Balance returns the amount held in c.
func (p Profile) Balance(c Currency) int {
	if c == PepPoints {
		return p.PepPoints
	}
	return p.Credits
}

// DefaultTier is the tier of profiles without a subscription.
const DefaultTier = "free"

// SharedSession is a session published under a short id.
type SharedSession struct {
	ID        string          `json:"id"`
	Session   session.Session `json:"session"`
	OwnerID   string          `json:"ownerId"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Product mirrors a payment-provider product.
type Product struct {
	ID          string            `json:"id"`
	Active      bool              `json:"active"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Images      []string          `json:"images"`
	Metadata    map[string]string `json:"metadata"`
	Prices      []Price           `json:"prices"`
}

// Price mirrors a payment-provider price.
type Price struct {
	ID            string            `json:"id"`
	Active        bool              `json:"active"`
	Currency      string            `json:"currency"`
	UnitAmount    int64             `json:"unit_amount"`
	Description   string            `json:"description,omitempty"`
	Type          string            `json:"type"`
	Interval      string            `json:"interval,omitempty"`
	IntervalCount int               `json:"interval_count,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// Checkout modes.
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// CheckoutSession is a request for the payment provider to open a checkout.
// The provider integration fills URL or Error.
type CheckoutSession struct {
	ID         string            `json:"id"`
	UID        string            `json:"uid"`
	Price      string            `json:"price"`
	Mode       string            `json:"mode"`
	Metadata   map[string]string `json:"metadata"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	URL        string            `json:"url,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Subscription statuses that grant access.
const (
	StatusActive    = "active"
	StatusTrialing  = "trialing"
	StatusSucceeded = "succeeded"
)

// Subscription is a customer's subscription as the provider reports it.
type Subscription struct {
	ID        string `json:"id"`
	UID       string `json:"uid"`
	Status    string `json:"status"`
	ProductID string `json:"product"`
	PriceID   string `json:"price,omitempty"`
}

// Payment is a customer's payment as the provider reports it.
type Payment struct {
	ID        string            `json:"id"`
	UID       string            `json:"uid"`
	Status    string            `json:"status"`
	ProductID string            `json:"product,omitempty"`
	PriceID   string            `json:"price,omitempty"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created"`
}
