package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/pkg/logger"
)

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:", WithClock(stepClock()), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDrill(name string) drill.Drill {
	d := drill.New()
	d.Name = name
	d.Positions = []drill.Position{{ID: "p1", X: 10, Y: 20, Label: "1", Type: drill.Player, Color: drill.PlayerColor}}
	return d
}

func TestSQLiteStore_Drills(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.SaveDrill(ctx, "u1", sampleDrill("Rondo"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.ID == "" || first.UserID != "u1" || first.CreatedAt.IsZero() {
		t.Fatalf("unexpected saved drill: %+v", first)
	}

	// Saving the same drill again allocates a new document.
	again, err := store.SaveDrill(ctx, "u1", first.Drill)
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if again.ID == first.ID {
		t.Error("expected a new id on every save")
	}

	batch, err := store.SaveDrills(ctx, "u1", []drill.Drill{sampleDrill("A"), sampleDrill("B")})
	if err != nil {
		t.Fatalf("save batch: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 saved drills, got %d", len(batch))
	}
	if _, err := store.SaveDrill(ctx, "u2", sampleDrill("Other")); err != nil {
		t.Fatalf("save other user: %v", err)
	}

	list, err := store.ListDrills(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"B", "A", "Rondo", "Rondo"}
	if len(list) != len(want) {
		t.Fatalf("expected %d drills, got %d", len(want), len(list))
	}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("position %d: expected %q, got %q", i, name, list[i].Name)
		}
	}
	if list[3].ID != first.ID || len(list[3].Positions) != 1 {
		t.Errorf("oldest entry does not round-trip: %+v", list[3])
	}

	got, err := store.GetDrill(ctx, "u1", first.ID)
	if err != nil || got.Name != "Rondo" {
		t.Fatalf("get: %v %+v", err, got)
	}
	if _, err := store.GetDrill(ctx, "u2", first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user's drill, got %v", err)
	}

	empty, err := store.ListDrills(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v %v", empty, err)
	}
}

func TestSQLiteStore_Profiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, err := store.EnsureProfile(ctx, "u1", "coach@example.com", 10)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.Credits != 10 || p.Tier != DefaultTier || p.Email != "coach@example.com" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	// A second ensure leaves the existing profile alone.
	if _, err := store.Deduct(ctx, "u1", Credits, 5); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	p, err = store.EnsureProfile(ctx, "u1", "other@example.com", 10)
	if err != nil || p.Credits != 5 || p.Email != "coach@example.com" {
		t.Fatalf("ensure overwrote profile: %+v %v", p, err)
	}

	p, err = store.Deduct(ctx, "u1", Credits, 6)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if p.Credits != 5 {
		t.Errorf("failed deduction changed balance to %d", p.Credits)
	}
	if _, err := store.Deduct(ctx, "u1", Currency("gold"), 1); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("expected ErrInvalidCurrency, got %v", err)
	}
	if _, err := store.Deduct(ctx, "ghost", Credits, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}

	p, err = store.UpdateProfile(ctx, "u1", func(p *Profile) error {
		p.PepPoints += 3
		p.CanSave = true
		p.Tier = "pro"
		p.LastRefill = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PepPoints != 3 || !got.CanSave || got.CanExport || got.Tier != "pro" || got.Credits != 5 {
		t.Errorf("unexpected profile after update: %+v", got)
	}
	if !got.LastRefill.Equal(p.LastRefill) {
		t.Errorf("last refill not stored: %v", got.LastRefill)
	}

	// fn errors abort the write.
	boom := errors.New("boom")
	if _, err := store.UpdateProfile(ctx, "u1", func(p *Profile) error {
		p.Credits = 999
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if got, _ := store.GetProfile(ctx, "u1"); got.Credits != 5 {
		t.Errorf("aborted update was written: %d", got.Credits)
	}

	// Updating an unknown user creates the profile.
	created, err := store.UpdateProfile(ctx, "u3", func(p *Profile) error {
		p.PepPoints = 7
		return nil
	})
	if err != nil || created.PepPoints != 7 || created.Tier != DefaultTier {
		t.Errorf("unexpected created profile: %+v %v", created, err)
	}
}

func TestSQLiteStore_ConcurrentDeduct(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.EnsureProfile(ctx, "u1", "", 10); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	var (
		wg      sync.WaitGroup
		ok, low atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Deduct(ctx, "u1", Credits, 5)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientFunds):
				low.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 2 || low.Load() != 6 {
		t.Errorf("expected 2 successes and 6 refusals, got %d and %d", ok.Load(), low.Load())
	}
	p, _ := store.GetProfile(ctx, "u1")
	if p.Credits != 0 {
		t.Errorf("expected zero balance, got %d", p.Credits)
	}
}

func TestSQLiteStore_Shared(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := session.New("U10 Tuesday", "Lions")
	sess.Add(sampleDrill("Rondo"))

	shared, err := store.SaveShared(ctx, "u1", sess)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.GetShared(ctx, shared.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OwnerID != "u1" || got.Session.Title != "U10 Tuesday" || len(got.Session.Drills) != 1 {
		t.Errorf("unexpected shared session: %+v", got)
	}
	if got.Session.Drills[0].Positions[0].ID != "p1" {
		t.Errorf("drill elements lost: %+v", got.Session.Drills[0])
	}
	if _, err := store.GetShared(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Catalog(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	products := []Product{
		{
			ID: "prod_pro", Active: true, Name: "Pro",
			Metadata: map[string]string{"credits": "100", "tier": "pro", "can_save": "true"},
			Prices: []Price{
				{ID: "price_m", Active: true, Currency: "usd", UnitAmount: 2000, Type: "recurring", Interval: "month", IntervalCount: 1},
				{ID: "price_old", Active: false, Currency: "usd", UnitAmount: 1500, Type: "recurring", Interval: "month"},
			},
		},
		{ID: "prod_pack", Active: true, Name: "Points", Metadata: map[string]string{"pepPoints": "20"},
			Prices: []Price{{ID: "price_pack", Active: true, Currency: "usd", UnitAmount: 500, Type: "one_time"}}},
		{ID: "prod_gone", Active: false, Name: "Legacy"},
	}
	for _, p := range products {
		if err := store.PutProduct(ctx, p); err != nil {
			t.Fatalf("put %s: %v", p.ID, err)
		}
	}

	active, err := store.ActiveProducts(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active products, got %d", len(active))
	}
	for _, p := range active {
		for _, pr := range p.Prices {
			if !pr.Active {
				t.Errorf("inactive price %s listed for %s", pr.ID, p.ID)
			}
		}
	}

	pro, err := store.GetProduct(ctx, "prod_pro")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(pro.Prices) != 2 || pro.Metadata["credits"] != "100" {
		t.Errorf("unexpected product: %+v", pro)
	}
	if _, err := store.GetProduct(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_Customers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	cs, err := store.CreateCheckoutSession(ctx, CheckoutSession{
		UID: "u1", Price: "price_m", Mode: ModeSubscription,
		SuccessURL: "https://app/ok", CancelURL: "https://app/cancel",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	cs.URL = "https://checkout/abc"
	if err := store.UpdateCheckoutSession(ctx, cs); err != nil {
		t.Fatalf("update checkout: %v", err)
	}
	got, err := store.GetCheckoutSession(ctx, "u1", cs.ID)
	if err != nil || got.URL != "https://checkout/abc" || got.Price != "price_m" {
		t.Fatalf("unexpected checkout: %+v %v", got, err)
	}
	if _, err := store.GetCheckoutSession(ctx, "u2", cs.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound across users, got %v", err)
	}
	if err := store.UpdateCheckoutSession(ctx, CheckoutSession{ID: "x", UID: "u1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating unknown session, got %v", err)
	}

	if _, err := store.FindSubscription(ctx, "u1", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no subscription, got %v", err)
	}
	if err := store.PutSubscription(ctx, Subscription{ID: "sub1", UID: "u1", Status: "canceled", ProductID: "prod_old"}); err != nil {
		t.Fatalf("put subscription: %v", err)
	}
	if err := store.PutSubscription(ctx, Subscription{ID: "sub2", UID: "u1", Status: StatusTrialing, ProductID: "prod_pro"}); err != nil {
		t.Fatalf("put subscription: %v", err)
	}
	sub, err := store.FindSubscription(ctx, "u1", StatusActive, StatusTrialing)
	if err != nil || sub.ID != "sub2" || sub.ProductID != "prod_pro" {
		t.Errorf("unexpected subscription: %+v %v", sub, err)
	}
	if _, err := store.FindSubscription(ctx, "u1", StatusActive); !errors.Is(err, ErrNotFound) {
		t.Errorf("trialing matched active-only lookup: %v", err)
	}

	if err := store.PutPayment(ctx, Payment{ID: "pay1", UID: "u1", Status: StatusSucceeded, Amount: 2000, Currency: "usd"}); err != nil {
		t.Errorf("put payment: %v", err)
	}
}
