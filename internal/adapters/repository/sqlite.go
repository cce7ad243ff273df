package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS drills (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS drills_by_user ON drills (user_id, created_at DESC);
CREATE TABLE IF NOT EXISTS users (
	uid                  TEXT PRIMARY KEY,
	email                TEXT NOT NULL DEFAULT '',
	credits              INTEGER NOT NULL DEFAULT 0,
	pep_points           INTEGER NOT NULL DEFAULT 0,
	can_save             INTEGER NOT NULL DEFAULT 0,
	can_export           INTEGER NOT NULL DEFAULT 0,
	tier                 TEXT NOT NULL DEFAULT 'free',
	stripe_customer_id   TEXT NOT NULL DEFAULT '',
	created_at           INTEGER NOT NULL DEFAULT 0,
	last_updated         INTEGER NOT NULL DEFAULT 0,
	last_refill          INTEGER NOT NULL DEFAULT 0,
	last_points_purchase INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS shared_sessions (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
	id     TEXT PRIMARY KEY,
	active INTEGER NOT NULL,
	doc    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS prices (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	active     INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS checkout_sessions (
	id  TEXT PRIMARY KEY,
	uid TEXT NOT NULL,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscriptions (
	uid    TEXT NOT NULL,
	id     TEXT NOT NULL,
	status TEXT NOT NULL,
	doc    TEXT NOT NULL,
	PRIMARY KEY (uid, id)
);
CREATE TABLE IF NOT EXISTS payments (
	uid TEXT NOT NULL,
	id  TEXT NOT NULL,
	doc TEXT NOT NULL,
	PRIMARY KEY (uid, id)
);
`

const profileColumns = `uid, email, credits, pep_points, can_save, can_export, tier,
	stripe_customer_id, created_at, last_updated, last_refill, last_points_purchase`

var balanceColumns = map[Currency]string{
	Credits:   "credits",
	PepPoints: "pep_points",
}

// SQLiteStore keeps every collection in one SQLite database. Documents are
// stored as JSON next to the columns that are queried.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions("repository.sqlite", opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	o.logger.Info(ctx, "sqlite store opened", logger.String("path", path))
	return &SQLiteStore{db: db, now: o.now, logger: o.logger}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// SaveDrill implements Drills.
func (s *SQLiteStore) SaveDrill(ctx context.Context, uid string, d drill.Drill) (SavedDrill, error) {
	out, err := s.SaveDrills(ctx, uid, []drill.Drill{d})
	if err != nil {
		return SavedDrill{}, err
	}
	return out[0], nil
}

// SaveDrills implements Drills.
func (s *SQLiteStore) SaveDrills(ctx context.Context, uid string, ds []drill.Drill) (out []SavedDrill, err error) {
	defer observe("save_drills", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save drills: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := s.now()
	out = make([]SavedDrill, 0, len(ds))
	for i, d := range ds {
		// Later drills of a batch sort first in ListDrills.
		ts := nanos(now) + int64(i)*int64(time.Microsecond)
		saved := SavedDrill{Drill: d.Clone(), UserID: uid, CreatedAt: fromNanos(ts), UpdatedAt: fromNanos(ts)}
		saved.ID = drill.NewID()
		doc, err := json.Marshal(saved.Drill)
		if err != nil {
			return nil, fmt.Errorf("encode drill %d: %w", i, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO drills (id, user_id, created_at, updated_at, doc) VALUES (?, ?, ?, ?, ?)`,
			saved.ID, uid, ts, ts, string(doc)); err != nil {
			return nil, fmt.Errorf("insert drill %d: %w", i, err)
		}
		out = append(out, saved)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit drills: %w", err)
	}
	return out, nil
}

// ListDrills implements Drills.
func (s *SQLiteStore) ListDrills(ctx context.Context, uid string) (out []SavedDrill, err error) {
	defer observe("list_drills", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, created_at, updated_at, doc FROM drills
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, uid)
	if err != nil {
		return nil, fmt.Errorf("list drills: %w", err)
	}
	defer rows.Close()

	out = []SavedDrill{}
	for rows.Next() {
		d, err := scanDrill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetDrill implements Drills.
func (s *SQLiteStore) GetDrill(ctx context.Context, uid, id string) (out SavedDrill, err error) {
	defer observe("get_drill", time.Now(), &err)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at, doc FROM drills WHERE id = ? AND user_id = ?`, id, uid)
	out, err = scanDrill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedDrill{}, ErrNotFound
	}
	return out, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDrill(r scanner) (SavedDrill, error) {
	var (
		id, uid, doc     string
		created, updated int64
	)
	if err := r.Scan(&id, &uid, &created, &updated, &doc); err != nil {
		return SavedDrill{}, err
	}
	d, err := drill.NormalizeRaw(json.RawMessage(doc), id)
	if err != nil {
		return SavedDrill{}, fmt.Errorf("decode drill %s: %w", id, err)
	}
	d.ID = id
	return SavedDrill{Drill: d, UserID: uid, CreatedAt: fromNanos(created), UpdatedAt: fromNanos(updated)}, nil
}

// EnsureProfile implements Profiles.
func (s *SQLiteStore) EnsureProfile(ctx context.Context, uid, email string, defaultCredits int) (p Profile, err error) {
	defer observe("ensure_profile", time.Now(), &err)

	if _, err = s.db.ExecContext(ctx,
		`INSERT INTO users (uid, email, credits, tier, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (uid) DO NOTHING`,
		uid, email, defaultCredits, DefaultTier, nanos(s.now())); err != nil {
		return Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return s.getProfile(ctx, s.db, uid)
}

// GetProfile implements Profiles.
func (s *SQLiteStore) GetProfile(ctx context.Context, uid string) (p Profile, err error) {
	defer observe("get_profile", time.Now(), &err)
	return s.getProfile(ctx, s.db, uid)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getProfile(ctx context.Context, q querier, uid string) (Profile, error) {
	var (
		p                                  Profile
		canSave, canExport                 int
		created, updated, refill, purchase int64
	)
	err := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM users WHERE uid = ?`, uid).Scan(
		&p.UID, &p.Email, &p.Credits, &p.PepPoints, &canSave, &canExport, &p.Tier,
		&p.StripeCustomerID, &created, &updated, &refill, &purchase)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p.CanSave = canSave != 0
	p.CanExport = canExport != 0
	p.CreatedAt = fromNanos(created)
	p.LastUpdated = fromNanos(updated)
	p.LastRefill = fromNanos(refill)
	p.LastPointsPurchase = fromNanos(purchase)
	return p, nil
}

// Deduct implements Profiles. The balance check and the write are one
// statement, so concurrent deductions cannot overdraw.
func (s *SQLiteStore) Deduct(ctx context.Context, uid string, c Currency, amount int) (p Profile, err error) {
	defer observe("deduct", time.Now(), &err)

	col, ok := balanceColumns[c]
	if !ok {
		return Profile{}, ErrInvalidCurrency
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = `+col+` - ?, last_updated = ? WHERE uid = ? AND `+col+` >= ?`,
		amount, nanos(s.now()), uid, amount)
	if err != nil {
		return Profile{}, fmt.Errorf("deduct %s: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Profile{}, fmt.Errorf("deduct %s: %w", c, err)
	}
	p, err = s.getProfile(ctx, s.db, uid)
	if err != nil {
		return Profile{}, err
	}
	if n == 0 {
		return p, ErrInsufficientFunds
	}
	return p, nil
}

// UpdateProfile implements Profiles. fn runs while the store's only
// connection is held and must not call back into the store.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, uid string, fn func(*Profile) error) (p Profile, err error) {
	defer observe("update_profile", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	p, err = s.getProfile(ctx, tx, uid)
	switch {
	case errors.Is(err, ErrNotFound):
		p = Profile{UID: uid, Tier: DefaultTier, CreatedAt: s.now()}
	case err != nil:
		return Profile{}, err
	}
	if err = fn(&p); err != nil {
		return Profile{}, err
	}
	p.UID = uid
	if _, err = tx.ExecContext(ctx, `INSERT INTO users (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			email = excluded.email, credits = excluded.credits, pep_points = excluded.pep_points,
			can_save = excluded.can_save, can_export = excluded.can_export, tier = excluded.tier,
			stripe_customer_id = excluded.stripe_customer_id, last_updated = excluded.last_updated,
			last_refill = excluded.last_refill, last_points_purchase = excluded.last_points_purchase`,
		p.UID, p.Email, p.Credits, p.PepPoints, boolInt(p.CanSave), boolInt(p.CanExport), p.Tier,
		p.StripeCustomerID, nanos(p.CreatedAt), nanos(p.LastUpdated), nanos(p.LastRefill),
		nanos(p.LastPointsPurchase)); err != nil {
		return Profile{}, fmt.Errorf("write profile: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Profile{}, fmt.Errorf("commit profile: %w", err)
	}
	return p, nil
}

// SaveShared implements Shares.
func (s *SQLiteStore) SaveShared(ctx context.Context, ownerID string, sess session.Session) (out SharedSession, err error) {
	defer observe("save_shared", time.Now(), &err)

	out = SharedSession{ID: drill.NewID(), Session: sess, OwnerID: ownerID, CreatedAt: s.now()}
	doc, err := json.Marshal(sess)
	if err != nil {
		return SharedSession{}, fmt.Errorf("encode session: %w", err)
	}
	if _, err = s.db.ExecContext(ctx,
		`INSERT INTO shared_sessions (id, owner_id, created_at, doc) VALUES (?, ?, ?, ?)`,
		out.ID, ownerID, nanos(out.CreatedAt), string(doc)); err != nil {
		return SharedSession{}, fmt.Errorf("save shared session: %w", err)
	}
	return out, nil
}

// GetShared implements Shares.
func (s *SQLiteStore) GetShared(ctx context.Context, id string) (out SharedSession, err error) {
	defer observe("get_shared", time.Now(), &err)

	var (
		doc     string
		created int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT owner_id, created_at, doc FROM shared_sessions WHERE id = ?`, id).Scan(&out.OwnerID, &created, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return SharedSession{}, ErrNotFound
	}
	if err != nil {
		return SharedSession{}, fmt.Errorf("get shared session: %w", err)
	}
	out.Session, err = session.Decode([]byte(doc))
	if err != nil {
		return SharedSession{}, err
	}
	out.ID = id
	out.CreatedAt = fromNanos(created)
	return out, nil
}

// ActiveProducts implements Catalog.
func (s *SQLiteStore) ActiveProducts(ctx context.Context) (out []Product, err error) {
	defer observe("active_products", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM products WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out = []Product{}
	for rows.Next() {
		var doc string
		if err = rows.Scan(&doc); err != nil {
			rows.Close()
			return nil, err
		}
		var p Product
		if err = json.Unmarshal([]byte(doc), &p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode product: %w", err)
		}
		out = append(out, p)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Prices, err = s.prices(ctx, out[i].ID, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetProduct implements Catalog. Prices of every state are included.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (p Product, err error) {
	defer observe("get_product", time.Now(), &err)

	var doc string
	err = s.db.QueryRowContext(ctx, `SELECT doc FROM products WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	if err = json.Unmarshal([]byte(doc), &p); err != nil {
		return Product{}, fmt.Errorf("decode product: %w", err)
	}
	p.Prices, err = s.prices(ctx, id, false)
	return p, err
}

func (s *SQLiteStore) prices(ctx context.Context, productID string, activeOnly bool) ([]Price, error) {
	q := `SELECT doc FROM prices WHERE product_id = ?`
	if activeOnly {
		q += ` AND active = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()

	out := []Price{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p Price
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("decode price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PutProduct implements Catalog.
func (s *SQLiteStore) PutProduct(ctx context.Context, p Product) (err error) {
	defer observe("put_product", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prices := p.Prices
	p.Prices = nil
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, active, doc) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET active = excluded.active, doc = excluded.doc`,
		p.ID, boolInt(p.Active), string(doc)); err != nil {
		return fmt.Errorf("write product: %w", err)
	}
	for _, pr := range prices {
		pdoc, err := json.Marshal(pr)
		if err != nil {
			return fmt.Errorf("encode price: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO prices (id, product_id, active, doc) VALUES (?, ?, ?, ?)
			 ON CONFLICT (id) DO UPDATE SET active = excluded.active, doc = excluded.doc`,
			pr.ID, p.ID, boolInt(pr.Active), string(pdoc)); err != nil {
			return fmt.Errorf("write price %s: %w", pr.ID, err)
		}
	}
	return tx.Commit()
}

// CreateCheckoutSession implements Customers.
func (s *SQLiteStore) CreateCheckoutSession(ctx context.Context, cs CheckoutSession) (out CheckoutSession, err error) {
	defer observe("create_checkout", time.Now(), &err)

	cs.ID = drill.NewID()
	cs.CreatedAt = s.now()
	if err = s.writeDoc(ctx,
		`INSERT INTO checkout_sessions (id, uid, doc) VALUES (?, ?, ?)`, cs, cs.ID, cs.UID); err != nil {
		return CheckoutSession{}, err
	}
	return cs, nil
}

// GetCheckoutSession implements Customers.
func (s *SQLiteStore) GetCheckoutSession(ctx context.Context, uid, id string) (cs CheckoutSession, err error) {
	defer observe("get_checkout", time.Now(), &err)

	var doc string
	err = s.db.QueryRowContext(ctx,
		`SELECT doc FROM checkout_sessions WHERE id = ? AND uid = ?`, id, uid).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return CheckoutSession{}, ErrNotFound
	}
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("get checkout session: %w", err)
	}
	if err = json.Unmarshal([]byte(doc), &cs); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return cs, nil
}

// UpdateCheckoutSession implements Customers.
func (s *SQLiteStore) UpdateCheckoutSession(ctx context.Context, cs CheckoutSession) (err error) {
	defer observe("update_checkout", time.Now(), &err)

	doc, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("encode checkout session: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE checkout_sessions SET doc = ? WHERE id = ? AND uid = ?`, string(doc), cs.ID, cs.UID)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PutSubscription implements Customers.
func (s *SQLiteStore) PutSubscription(ctx context.Context, sub Subscription) (err error) {
	defer observe("put_subscription", time.Now(), &err)

	return s.writeDoc(ctx,
		`INSERT INTO subscriptions (uid, id, status, doc) VALUES (?, ?, ?, ?)
		 ON CONFLICT (uid, id) DO UPDATE SET status = excluded.status, doc = excluded.doc`,
		sub, sub.UID, sub.ID, sub.Status)
}

// FindSubscription implements Customers.
func (s *SQLiteStore) FindSubscription(ctx context.Context, uid string, statuses ...string) (sub Subscription, err error) {
	defer observe("find_subscription", time.Now(), &err)

	if len(statuses) == 0 {
		return Subscription{}, ErrNotFound
	}
	args := make([]any, 0, len(statuses)+1)
	args = append(args, uid)
	for _, st := range statuses {
		args = append(args, st)
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")

	var doc string
	err = s.db.QueryRowContext(ctx,
		`SELECT doc FROM subscriptions WHERE uid = ? AND status IN (`+marks+`) ORDER BY rowid LIMIT 1`,
		args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("find subscription: %w", err)
	}
	if err = json.Unmarshal([]byte(doc), &sub); err != nil {
		return Subscription{}, fmt.Errorf("decode subscription: %w", err)
	}
	return sub, nil
}

// PutPayment implements Customers.
func (s *SQLiteStore) PutPayment(ctx context.Context, p Payment) (err error) {
	defer observe("put_payment", time.Now(), &err)

	return s.writeDoc(ctx,
		`INSERT INTO payments (uid, id, doc) VALUES (?, ?, ?)
		 ON CONFLICT (uid, id) DO UPDATE SET doc = excluded.doc`,
		p, p.UID, p.ID)
}

// writeDoc runs query with args followed by v encoded as JSON.
func (s *SQLiteStore) writeDoc(ctx context.Context, query string, v any, args ...any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	if _, err := s.db.ExecContext(ctx, query, append(args, string(doc))...); err != nil {
		return fmt.Errorf("write %T: %w", v, err)
	}
	return nil
}

func observe(op string, start time.Time, err *error) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
	if *err != nil && !errors.Is(*err, ErrNotFound) && !errors.Is(*err, ErrInsufficientFunds) {
		metrics.RecordStoreError(op)
	}
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
