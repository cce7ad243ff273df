// Package api serves the drill service over HTTP: generation, history,
// sharing, drafts, billing, the diagram replay endpoint and the voice
// websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/pepai/internal/adapters/drafts"
	"github.com/okian/pepai/internal/adapters/http/auth"
	"github.com/okian/pepai/internal/adapters/mq/queue"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/billing"
	"github.com/okian/pepai/internal/domain/dedupe"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/internal/voice"
	"github.com/okian/pepai/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Generator produces drills.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, request string) <-chan generate.Event
	Refine(ctx context.Context, current drill.Drill, instruction string) <-chan generate.Event
	Complete(ctx context.Context, request string) (drill.Response, error)
}

// History reads a user's saved drills.
type History interface {
	ListDrills(ctx context.Context, uid string) ([]repository.SavedDrill, error)
	GetDrill(ctx context.Context, uid, id string) (repository.SavedDrill, error)
}

// Saves accepts history writes for asynchronous persistence.
type Saves interface {
	dedupe.Deduper
	// Enqueue returns false on backpressure.
	Enqueue(ctx context.Context, j queue.Job) bool
}

// Shares stores published sessions.
type Shares interface {
	SaveShared(ctx context.Context, ownerID string, s session.Session) (repository.SharedSession, error)
	GetShared(ctx context.Context, id string) (repository.SharedSession, error)
}

// Drafts autosaves the session being planned.
type Drafts interface {
	Save(ctx context.Context, uid string, s session.Session) (drafts.Draft, error)
	Load(ctx context.Context, uid string) (drafts.Draft, error)
	Delete(ctx context.Context, uid string) error
}

// Billing charges paid actions and handles provider events.
type Billing interface {
	Enforced() bool
	Charge(ctx context.Context, uid string, c repository.Currency) (repository.Profile, error)
	Refund(ctx context.Context, uid string, c repository.Currency) error
	Require(ctx context.Context, uid string, capability billing.Capability) error
	Account(ctx context.Context, uid, email string) (billing.Account, error)
	Products(ctx context.Context) ([]repository.Product, error)
	Checkout(ctx context.Context, uid string, req billing.CheckoutRequest) (string, error)
	RecordSubscription(ctx context.Context, sub repository.Subscription) (billing.Outcome, error)
	RecordPayment(ctx context.Context, pay repository.Payment) (billing.Outcome, error)
	RecordProduct(ctx context.Context, p repository.Product) error
	CompleteCheckout(ctx context.Context, uid, id, url, errMsg string) error
}

// Voice runs one voice session over a client connection.
type Voice interface {
	Run(ctx context.Context, client voice.ClientConn, initial drill.Drill) (drill.Drill, error)
}

// Dependencies are the collaborators handlers use. Voice may be nil when no
// live model is configured.
type Dependencies struct {
	Generator Generator
	History   History
	Saves     Saves
	Shares    Shares
	Drafts    Drafts
	Billing   Billing
	Voice     Voice
	Stats     StatsProvider
}

// Server wires HTTP routes for the drill service.
type Server struct {
	deps            Dependencies
	devMode         bool
	maxPromptLength int
	publicURL       string
	webhookSecret   string
	verifier        *auth.Verifier
	mockUID         string
	logger          logger.Logger
}

// NewServer creates a server over deps.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:            deps,
		maxPromptLength: 2000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux. Every route runs behind the auth
// middleware; handlers that need a user check for one.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	authn := auth.Middleware(s.verifier, s.mockUID, s.logger)
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, authn(MetricsMiddleware(h, endpoint)))
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(NewHealthHandler().HandleHealth, "healthz"))
	if s.deps.Stats != nil {
		mux.HandleFunc("GET /stats", MetricsMiddleware(NewStatsHandler(s.deps.Stats).HandleStats, "stats"))
	}

	route("POST /api/drills", "drills", s.handleDrills)
	route("POST /api/drills/stream", "drills_stream", s.handleDrillStream)
	route("POST /api/drills/refine", "drills_refine", s.handleDrillRefine)
	route("POST /api/drills/new", "drills_new", s.handleDrillNew)

	route("GET /api/history", "history", s.handleHistoryList)
	route("POST /api/history", "history", s.handleHistorySave)
	route("POST /api/history/batch", "history_batch", s.handleHistoryBatch)
	route("POST /api/history/reuse", "history_reuse", s.handleHistoryReuse)

	route("POST /api/share", "share", s.handleShareCreate)
	route("POST /api/share/legacy", "share_legacy", s.handleShareLegacy)
	route("GET /api/share", "share", s.handleShareGet)

	route("GET /api/session/draft", "draft", s.handleDraftGet)
	route("PUT /api/session/draft", "draft", s.handleDraftPut)
	route("DELETE /api/session/draft", "draft", s.handleDraftDelete)

	route("GET /api/me", "me", s.handleMe)
	route("GET /api/products", "products", s.handleProducts)
	route("POST /api/checkout", "checkout", s.handleCheckout)

	mux.HandleFunc("POST /internal/billing/subscription", MetricsMiddleware(s.webhook(s.handleSubscriptionEvent), "billing_subscription"))
	mux.HandleFunc("POST /internal/billing/payment", MetricsMiddleware(s.webhook(s.handlePaymentEvent), "billing_payment"))
	mux.HandleFunc("POST /internal/billing/product", MetricsMiddleware(s.webhook(s.handleProductEvent), "billing_product"))
	mux.HandleFunc("POST /internal/billing/checkout", MetricsMiddleware(s.webhook(s.handleCheckoutEvent), "billing_checkout"))

	route("POST /api/diagram/gestures", "diagram", s.handleGestures)
	route("GET /api/voice", "voice", s.handleVoice)
}

type errorResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail logs err and writes it with the status and redirect it maps to.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, redirect := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path), logger.String("uid", auth.UID(r.Context())), logger.Error(err))
	} else {
		s.logger.Debug(r.Context(), "request rejected",
			logger.String("path", r.URL.Path), logger.Int("status", status), logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: publicMessage(err, status, s.devMode), Redirect: redirect})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, op string, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	if len(body) > maxBodyBytes {
		return WrapKind(op, ErrBadRequest, fmt.Errorf("body exceeds %d bytes", maxBodyBytes))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// requireUser returns the authenticated uid.
func requireUser(r *http.Request, op string) (string, error) {
	uid := auth.UID(r.Context())
	if uid == "" {
		return "", NewKind(op, ErrUnauthorized)
	}
	return uid, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound) || errors.Is(err, drafts.ErrNotFound)
}
