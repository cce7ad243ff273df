// Package repository persists drills, profiles, shared sessions and the
// payment-provider mirror. SQLiteStore serves local and test deployments;
// FirestoreStore serves hosted ones with the document layout the payment
// extension expects.
package repository

import (
	"context"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
)

// Drills is the append-only drill history.
type Drills interface {
	// SaveDrill stores d under a new id owned by uid.
	SaveDrill(ctx context.Context, uid string, d drill.Drill) (SavedDrill, error)
	// SaveDrills stores every drill under new ids in one atomic write.
	SaveDrills(ctx context.Context, uid string, ds []drill.Drill) ([]SavedDrill, error)
	// ListDrills returns uid's drills, newest first.
	ListDrills(ctx context.Context, uid string) ([]SavedDrill, error)
	// GetDrill returns one of uid's drills. Other users' drills are ErrNotFound.
	GetDrill(ctx context.Context, uid, id string) (SavedDrill, error)
}

// Profiles holds billing records.
type Profiles interface {
	// EnsureProfile creates the profile on first sight and returns it.
	EnsureProfile(ctx context.Context, uid, email string, defaultCredits int) (Profile, error)
	// GetProfile returns ErrNotFound for unknown users.
	GetProfile(ctx context.Context, uid string) (Profile, error)
	// Deduct atomically subtracts amount from c if the balance covers it.
	// It returns ErrInsufficientFunds otherwise.
	Deduct(ctx context.Context, uid string, c Currency, amount int) (Profile, error)
	// UpdateProfile applies fn to the profile inside one transaction,
	// creating an empty profile when none exists.
	UpdateProfile(ctx context.Context, uid string, fn func(*Profile) error) (Profile, error)
}

// Shares holds published sessions.
type Shares interface {
	SaveShared(ctx context.Context, ownerID string, s session.Session) (SharedSession, error)
	GetShared(ctx context.Context, id string) (SharedSession, error)
}

// Catalog is the mirrored product catalog.
type Catalog interface {
	// ActiveProducts returns active products with their active prices.
	ActiveProducts(ctx context.Context) ([]Product, error)
	// GetProduct returns a product with all of its prices.
	GetProduct(ctx context.Context, id string) (Product, error)
	// PutProduct upserts p and each of its prices.
	PutProduct(ctx context.Context, p Product) error
}

// Customers holds per-customer provider documents.
type Customers interface {
	CreateCheckoutSession(ctx context.Context, cs CheckoutSession) (CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, uid, id string) (CheckoutSession, error)
	UpdateCheckoutSession(ctx context.Context, cs CheckoutSession) error
	PutSubscription(ctx context.Context, s Subscription) error
	// FindSubscription returns one of uid's subscriptions in any of statuses.
	FindSubscription(ctx context.Context, uid string, statuses ...string) (Subscription, error)
	PutPayment(ctx context.Context, p Payment) error
}

// Store is everything the service persists.
type Store interface {
	Drills
	Profiles
	Shares
	Catalog
	Customers
	Close() error
}
