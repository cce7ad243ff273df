package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/okian/pepai/internal/adapters/http/auth"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/billing"
)

type productsResponse struct {
	Products []repository.Product `json:"products"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

// handleMe returns the caller's profile, creating it on first sight.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	const op = "api.me"
	u, ok := auth.FromContext(r.Context())
	if !ok || u.UID == "" {
		s.fail(w, r, NewKind(op, ErrUnauthorized))
		return
	}
	acct, err := s.deps.Billing.Account(r.Context(), u.UID, u.Email)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	const op = "api.products"
	ps, err := s.deps.Billing.Products(r.Context())
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{Products: ps})
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "api.checkout"
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req billing.CheckoutRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.deps.Billing.Checkout(r.Context(), uid, req)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: u})
}

// Provider events. Documents arrive as the provider wrote them and are
// decoded leniently.

// WebhookSecretHeader authenticates provider events.
const WebhookSecretHeader = "X-Webhook-Secret"

type providerEvent struct {
	UID  string         `json:"uid"`
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

type outcomeResponse struct {
	Outcome billing.Outcome `json:"outcome"`
}

func (s *Server) webhook(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(WebhookSecretHeader)
		if s.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			s.fail(w, r, NewKind("api.webhook", ErrUnauthorized))
			return
		}
		next(w, r)
	}
}

func (s *Server) providerEvent(r *http.Request, op string) (providerEvent, error) {
	var ev providerEvent
	if err := decodeJSON(r, op, &ev); err != nil {
		return ev, err
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	return ev, nil
}

func (s *Server) handleSubscriptionEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.billing_subscription"
	ev, err := s.providerEvent(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.deps.Billing.RecordSubscription(r.Context(), repository.SubscriptionOf(ev.UID, ev.ID, ev.Data))
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: out})
}

func (s *Server) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.billing_payment"
	ev, err := s.providerEvent(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.deps.Billing.RecordPayment(r.Context(), repository.PaymentOf(ev.UID, ev.ID, ev.Data))
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: out})
}

func (s *Server) handleProductEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.billing_product"
	var p repository.Product
	if err := decodeJSON(r, op, &p); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Billing.RecordProduct(r.Context(), p); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkoutEvent struct {
	UID   string `json:"uid"`
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (s *Server) handleCheckoutEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.billing_checkout"
	var ev checkoutEvent
	if err := decodeJSON(r, op, &ev); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Billing.CompleteCheckout(r.Context(), ev.UID, ev.ID, ev.URL, ev.Error); err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
