package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/pkg/logger"
)

// Collection names. The customers and products trees follow the layout the
// Stripe Firebase extension writes.
const (
	colDrills    = "drills"
	colUsers     = "users"
	colShared    = "shared_sessions"
	colProducts  = "products"
	colPrices    = "prices"
	colCustomers = "customers"
	colCheckout  = "checkout_sessions"
	colSubs      = "subscriptions"
	colPayments  = "payments"
)

// FirestoreStore is the hosted Store.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
	logger logger.Logger
}

var _ Store = (*FirestoreStore)(nil)

// OpenFirestore connects to project. FIRESTORE_EMULATOR_HOST is honoured by
// the client library.
func OpenFirestore(ctx context.Context, project string, clientOpts []option.ClientOption, opts ...Option) (*FirestoreStore, error) {
	o := buildOptions("repository.firestore", opts)

	client, err := firestore.NewClient(ctx, project, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	o.logger.Info(ctx, "firestore store opened", logger.String("project", project))
	return &FirestoreStore{client: client, now: o.now, logger: o.logger}, nil
}

// Close releases the client.
func (s *FirestoreStore) Close() error { return s.client.Close() }

func (s *FirestoreStore) customer(uid string) *firestore.DocumentRef {
	return s.client.Collection(colCustomers).Doc(uid)
}

// SaveDrill implements Drills.
func (s *FirestoreStore) SaveDrill(ctx context.Context, uid string, d drill.Drill) (SavedDrill, error) {
	out, err := s.SaveDrills(ctx, uid, []drill.Drill{d})
	if err != nil {
		return SavedDrill{}, err
	}
	return out[0], nil
}

// SaveDrills implements Drills. All documents are written in one transaction.
func (s *FirestoreStore) SaveDrills(ctx context.Context, uid string, ds []drill.Drill) (out []SavedDrill, err error) {
	defer observe("save_drills", time.Now(), &err)

	now := s.now()
	type pending struct {
		ref *firestore.DocumentRef
		doc map[string]any
	}
	writes := make([]pending, 0, len(ds))
	out = make([]SavedDrill, 0, len(ds))
	for i, d := range ds {
		ref := s.client.Collection(colDrills).NewDoc()
		ts := now.Add(time.Duration(i) * time.Microsecond)
		saved := SavedDrill{Drill: d.Clone(), UserID: uid, CreatedAt: ts, UpdatedAt: ts}
		saved.ID = ref.ID
		doc, err := toDoc(saved.Drill)
		if err != nil {
			return nil, fmt.Errorf("encode drill %d: %w", i, err)
		}
		doc["userId"] = uid
		doc["createdAt"] = ts
		doc["updatedAt"] = ts
		writes = append(writes, pending{ref: ref, doc: doc})
		out = append(out, saved)
	}

	err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		for _, w := range writes {
			if err := tx.Create(w.ref, w.doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save drills: %w", err)
	}
	return out, nil
}

// ListDrills implements Drills. It needs the (userId, createdAt desc)
// composite index.
func (s *FirestoreStore) ListDrills(ctx context.Context, uid string) (out []SavedDrill, err error) {
	defer observe("list_drills", time.Now(), &err)

	it := s.client.Collection(colDrills).
		Where("userId", "==", uid).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx)
	defer it.Stop()

	out = []SavedDrill{}
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list drills: %w", err)
		}
		d, err := savedDrillOf(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
}

// GetDrill implements Drills.
func (s *FirestoreStore) GetDrill(ctx context.Context, uid, id string) (out SavedDrill, err error) {
	defer observe("get_drill", time.Now(), &err)

	snap, err := s.client.Collection(colDrills).Doc(id).Get(ctx)
	if err != nil {
		return SavedDrill{}, notFound(err, "get drill")
	}
	out, err = savedDrillOf(snap)
	if err != nil {
		return SavedDrill{}, err
	}
	if out.UserID != uid {
		return SavedDrill{}, ErrNotFound
	}
	return out, nil
}

func savedDrillOf(snap *firestore.DocumentSnapshot) (SavedDrill, error) {
	m := snap.Data()
	raw, err := json.Marshal(m)
	if err != nil {
		return SavedDrill{}, fmt.Errorf("encode drill %s: %w", snap.Ref.ID, err)
	}
	d, err := drill.NormalizeRaw(raw, snap.Ref.ID)
	if err != nil {
		return SavedDrill{}, fmt.Errorf("decode drill %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	uid, _ := m["userId"].(string)
	return SavedDrill{Drill: d, UserID: uid, CreatedAt: timeOf(m["createdAt"]), UpdatedAt: timeOf(m["updatedAt"])}, nil
}

// EnsureProfile implements Profiles.
func (s *FirestoreStore) EnsureProfile(ctx context.Context, uid, email string, defaultCredits int) (p Profile, err error) {
	defer observe("ensure_profile", time.Now(), &err)

	ref := s.client.Collection(colUsers).Doc(uid)
	err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err == nil {
			p = profileOf(uid, snap.Data())
			return nil
		}
		if status.Code(err) != codes.NotFound {
			return err
		}
		p = Profile{UID: uid, Email: email, Credits: defaultCredits, Tier: DefaultTier, CreatedAt: s.now()}
		return tx.Create(ref, profileDoc(p))
	})
	if err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return p, nil
}

// GetProfile implements Profiles.
func (s *FirestoreStore) GetProfile(ctx context.Context, uid string) (p Profile, err error) {
	defer observe("get_profile", time.Now(), &err)

	snap, err := s.client.Collection(colUsers).Doc(uid).Get(ctx)
	if err != nil {
		return Profile{}, notFound(err, "get profile")
	}
	return profileOf(uid, snap.Data()), nil
}

// Deduct implements Profiles inside a transaction.
func (s *FirestoreStore) Deduct(ctx context.Context, uid string, c Currency, amount int) (p Profile, err error) {
	defer observe("deduct", time.Now(), &err)

	if !c.Valid() {
		return Profile{}, ErrInvalidCurrency
	}
	ref := s.client.Collection(colUsers).Doc(uid)
	err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return notFound(err, "deduct")
		}
		p = profileOf(uid, snap.Data())
		if p.Balance(c) < amount {
			return ErrInsufficientFunds
		}
		now := s.now()
		if c == PepPoints {
			p.PepPoints -= amount
		} else {
			p.Credits -= amount
		}
		p.LastUpdated = now
		return tx.Update(ref, []firestore.Update{
			{Path: string(c), Value: firestore.Increment(-amount)},
			{Path: "lastUpdated", Value: now},
		})
	})
	if errors.Is(err, ErrInsufficientFunds) {
		return p, ErrInsufficientFunds
	}
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UpdateProfile implements Profiles.
func (s *FirestoreStore) UpdateProfile(ctx context.Context, uid string, fn func(*Profile) error) (p Profile, err error) {
	defer observe("update_profile", time.Now(), &err)

	ref := s.client.Collection(colUsers).Doc(uid)
	err = s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			p = profileOf(uid, snap.Data())
		case status.Code(err) == codes.NotFound:
			p = Profile{UID: uid, Tier: DefaultTier, CreatedAt: s.now()}
		default:
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		p.UID = uid
		return tx.Set(ref, profileDoc(p), firestore.MergeAll)
	})
	if err != nil {
		return Profile{}, err
	}
	return p, nil
}

// profileOf reads a user document leniently: numbers may be stored as
// integers or doubles and flags as booleans or "true".
func profileOf(uid string, m map[string]any) Profile {
	tier, _ := m["tier"].(string)
	if tier == "" {
		tier = DefaultTier
	}
	email, _ := m["email"].(string)
	customer, _ := m["stripeCustomerId"].(string)
	return Profile{
		UID:                uid,
		Email:              email,
		Credits:            intOf(m["credits"]),
		PepPoints:          intOf(m["pepPoints"]),
		CanSave:            flagOf(m["can_save"]),
		CanExport:          flagOf(m["can_export"]),
		Tier:               tier,
		StripeCustomerID:   customer,
		CreatedAt:          timeOf(m["createdAt"]),
		LastUpdated:        timeOf(m["lastUpdated"]),
		LastRefill:         timeOf(m["lastRefill"]),
		LastPointsPurchase: timeOf(m["lastPointsPurchase"]),
	}
}

func profileDoc(p Profile) map[string]any {
	m := map[string]any{
		"email":            p.Email,
		"credits":          p.Credits,
		"pepPoints":        p.PepPoints,
		"can_save":         p.CanSave,
		"can_export":       p.CanExport,
		"tier":             p.Tier,
		"stripeCustomerId": p.StripeCustomerID,
		"createdAt":        p.CreatedAt,
	}
	for k, t := range map[string]time.Time{
		"lastUpdated":        p.LastUpdated,
		"lastRefill":         p.LastRefill,
		"lastPointsPurchase": p.LastPointsPurchase,
	} {
		if !t.IsZero() {
			m[k] = t
		}
	}
	return m
}

// SaveShared implements Shares.
func (s *FirestoreStore) SaveShared(ctx context.Context, ownerID string, sess session.Session) (out SharedSession, err error) {
	defer observe("save_shared", time.Now(), &err)

	ref := s.client.Collection(colShared).NewDoc()
	doc, err := toDoc(sess)
	if err != nil {
		return SharedSession{}, fmt.Errorf("encode session: %w", err)
	}
	out = SharedSession{ID: ref.ID, Session: sess, OwnerID: ownerID, CreatedAt: s.now()}
	if _, err = ref.Create(ctx, map[string]any{
		"session":   doc,
		"ownerId":   ownerID,
		"createdAt": out.CreatedAt,
	}); err != nil {
		return SharedSession{}, fmt.Errorf("save shared session: %w", err)
	}
	return out, nil
}

// GetShared implements Shares.
func (s *FirestoreStore) GetShared(ctx context.Context, id string) (out SharedSession, err error) {
	defer observe("get_shared", time.Now(), &err)

	snap, err := s.client.Collection(colShared).Doc(id).Get(ctx)
	if err != nil {
		return SharedSession{}, notFound(err, "get shared session")
	}
	m := snap.Data()
	raw, err := json.Marshal(m["session"])
	if err != nil {
		return SharedSession{}, fmt.Errorf("encode shared session: %w", err)
	}
	if out.Session, err = session.Decode(raw); err != nil {
		return SharedSession{}, err
	}
	out.ID = id
	out.OwnerID, _ = m["ownerId"].(string)
	out.CreatedAt = timeOf(m["createdAt"])
	return out, nil
}

// ActiveProducts implements Catalog. Prices are fetched per product in parallel.
func (s *FirestoreStore) ActiveProducts(ctx context.Context) (out []Product, err error) {
	defer observe("active_products", time.Now(), &err)

	snaps, err := s.client.Collection(colProducts).Where("active", "==", true).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out = make([]Product, len(snaps))
	g, gctx := errgroup.WithContext(ctx)
	for i, snap := range snaps {
		p, err := productOf(snap)
		if err != nil {
			return nil, err
		}
		out[i] = p
		g.Go(func() error {
			prices, err := s.prices(gctx, snap.Ref, true)
			out[i].Prices = prices
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct implements Catalog. A product whose document id differs from
// its provider id is found by its "id" field.
func (s *FirestoreStore) GetProduct(ctx context.Context, id string) (p Product, err error) {
	defer observe("get_product", time.Now(), &err)

	snap, err := s.client.Collection(colProducts).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		snaps, qerr := s.client.Collection(colProducts).Where("id", "==", id).Limit(1).Documents(ctx).GetAll()
		if qerr != nil {
			return Product{}, fmt.Errorf("find product: %w", qerr)
		}
		if len(snaps) == 0 {
			return Product{}, ErrNotFound
		}
		snap, err = snaps[0], nil
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	if p, err = productOf(snap); err != nil {
		return Product{}, err
	}
	p.ID = id
	p.Prices, err = s.prices(ctx, snap.Ref, false)
	return p, err
}

// metaPrefix marks metadata the payment extension flattens onto documents.
const metaPrefix = "stripe_metadata_"

func productOf(snap *firestore.DocumentSnapshot) (Product, error) {
	m := snap.Data()
	var p Product
	if err := fromDoc(m, &p); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	p.Metadata = foldMetadata(p.Metadata, m)
	return p, nil
}

// foldMetadata adds flattened stripe_metadata_<key> fields of m to md under <key>
// when md has no value for it.
func foldMetadata(md map[string]string, m map[string]any) map[string]string {
	for k, v := range m {
		key, ok := strings.CutPrefix(k, metaPrefix)
		if !ok {
			continue
		}
		if md == nil {
			md = map[string]string{}
		}
		if _, set := md[key]; !set {
			md[key] = fmt.Sprint(v)
		}
	}
	return md
}

func (s *FirestoreStore) prices(ctx context.Context, product *firestore.DocumentRef, activeOnly bool) ([]Price, error) {
	q := product.Collection(colPrices).Query
	if activeOnly {
		q = q.Where("active", "==", true)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list prices of %s: %w", product.ID, err)
	}
	out := make([]Price, 0, len(snaps))
	for _, snap := range snaps {
		var p Price
		if err := fromDoc(snap.Data(), &p); err != nil {
			return nil, fmt.Errorf("decode price %s: %w", snap.Ref.ID, err)
		}
		p.ID = snap.Ref.ID
		out = append(out, p)
	}
	return out, nil
}

// PutProduct implements Catalog.
func (s *FirestoreStore) PutProduct(ctx context.Context, p Product) (err error) {
	defer observe("put_product", time.Now(), &err)

	prices := p.Prices
	p.Prices = nil
	doc, err := toDoc(p)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	delete(doc, "prices")
	ref := s.client.Collection(colProducts).Doc(p.ID)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		for _, pr := range prices {
			pdoc, err := toDoc(pr)
			if err != nil {
				return fmt.Errorf("encode price: %w", err)
			}
			if err := tx.Set(ref.Collection(colPrices).Doc(pr.ID), pdoc); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateCheckoutSession implements Customers.
func (s *FirestoreStore) CreateCheckoutSession(ctx context.Context, cs CheckoutSession) (out CheckoutSession, err error) {
	defer observe("create_checkout", time.Now(), &err)

	ref := s.customer(cs.UID).Collection(colCheckout).NewDoc()
	cs.ID = ref.ID
	cs.CreatedAt = s.now()
	doc, err := toDoc(cs)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("encode checkout session: %w", err)
	}
	doc["createdAt"] = cs.CreatedAt
	if _, err = ref.Create(ctx, doc); err != nil {
		return CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	return cs, nil
}

// GetCheckoutSession implements Customers. The provider reports failures
// as {error: {message}}.
func (s *FirestoreStore) GetCheckoutSession(ctx context.Context, uid, id string) (cs CheckoutSession, err error) {
	defer observe("get_checkout", time.Now(), &err)

	snap, err := s.customer(uid).Collection(colCheckout).Doc(id).Get(ctx)
	if err != nil {
		return CheckoutSession{}, notFound(err, "get checkout session")
	}
	m := snap.Data()
	var msg string
	switch e := m["error"].(type) {
	case map[string]any:
		msg, _ = e["message"].(string)
	case string:
		msg = e
	}
	delete(m, "error")
	if err = fromDoc(m, &cs); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	cs.ID = id
	cs.UID = uid
	cs.Error = msg
	return cs, nil
}

// UpdateCheckoutSession implements Customers.
func (s *FirestoreStore) UpdateCheckoutSession(ctx context.Context, cs CheckoutSession) (err error) {
	defer observe("update_checkout", time.Now(), &err)

	var updates []firestore.Update
	if cs.URL != "" {
		updates = append(updates, firestore.Update{Path: "url", Value: cs.URL})
	}
	if cs.Error != "" {
		updates = append(updates, firestore.Update{Path: "error", Value: map[string]any{"message": cs.Error}})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err = s.customer(cs.UID).Collection(colCheckout).Doc(cs.ID).Update(ctx, updates)
	return notFound(err, "update checkout session")
}

// PutSubscription implements Customers.
func (s *FirestoreStore) PutSubscription(ctx context.Context, sub Subscription) (err error) {
	defer observe("put_subscription", time.Now(), &err)

	doc, err := toDoc(sub)
	if err != nil {
		return fmt.Errorf("encode subscription: %w", err)
	}
	_, err = s.customer(sub.UID).Collection(colSubs).Doc(sub.ID).Set(ctx, doc, firestore.MergeAll)
	return err
}

// FindSubscription implements Customers.
func (s *FirestoreStore) FindSubscription(ctx context.Context, uid string, statuses ...string) (sub Subscription, err error) {
	defer observe("find_subscription", time.Now(), &err)

	if len(statuses) == 0 {
		return Subscription{}, ErrNotFound
	}
	snaps, err := s.customer(uid).Collection(colSubs).Where("status", "in", statuses).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return Subscription{}, fmt.Errorf("find subscription: %w", err)
	}
	if len(snaps) == 0 {
		return Subscription{}, ErrNotFound
	}
	return SubscriptionOf(uid, snaps[0].Ref.ID, snaps[0].Data()), nil
}

// PutPayment implements Customers.
func (s *FirestoreStore) PutPayment(ctx context.Context, p Payment) (err error) {
	defer observe("put_payment", time.Now(), &err)

	doc, err := toDoc(p)
	if err != nil {
		return fmt.Errorf("encode payment: %w", err)
	}
	doc["created"] = p.CreatedAt
	_, err = s.customer(p.UID).Collection(colPayments).Doc(p.ID).Set(ctx, doc, firestore.MergeAll)
	return err
}

// SubscriptionOf reads a provider subscription document. The product is a
// string or a document reference, falling back to the first item's price.
func SubscriptionOf(uid, id string, m map[string]any) Subscription {
	st, _ := m["status"].(string)
	return Subscription{ID: id, UID: uid, Status: st, ProductID: ProductIDOf(m), PriceID: refID(m["price"])}
}

// PaymentOf reads a provider payment document.
func PaymentOf(uid, id string, m map[string]any) Payment {
	p := Payment{
		ID:        id,
		UID:       uid,
		ProductID: ProductIDOf(m),
		PriceID:   refID(m["price"]),
		Amount:    int64(intOf(m["amount"])),
		Metadata:  foldMetadata(stringMap(m["metadata"]), m),
		CreatedAt: timeOf(m["created"]),
	}
	p.Status, _ = m["status"].(string)
	p.Currency, _ = m["currency"].(string)
	return p
}

// ProductIDOf finds the product a subscription or payment refers to.
func ProductIDOf(m map[string]any) string {
	if id := refID(m["product"]); id != "" {
		return id
	}
	items, _ := m["items"].([]any)
	if len(items) == 0 {
		return ""
	}
	item, _ := items[0].(map[string]any)
	price, _ := item["price"].(map[string]any)
	return refID(price["product"])
}

func refID(v any) string {
	switch r := v.(type) {
	case string:
		return r
	case *firestore.DocumentRef:
		if r != nil {
			return r.ID
		}
	case map[string]any:
		id, _ := r["id"].(string)
		return id
	}
	return ""
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = fmt.Sprint(val)
	}
	return out
}

// toDoc converts v to a document map through its JSON form.
func toDoc(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// fromDoc fills v from a document map through its JSON form.
func fromDoc(m map[string]any, v any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func notFound(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func intOf(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		var i int
		_, _ = fmt.Sscan(n, &i)
		return i
	}
	return 0
}

func flagOf(v any) bool {
	return v == true || v == "true"
}

// timeOf reads a timestamp, unix seconds (as the provider sends them) or
// an RFC 3339 string.
func timeOf(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case float64:
		return time.Unix(int64(t), 0).UTC()
	case int64:
		return time.Unix(t, 0).UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
