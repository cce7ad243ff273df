package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/okian/pepai/internal/billing"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/internal/share"
	"github.com/okian/pepai/pkg/metrics"
)

type shareRequest struct {
	Session *session.Session `json:"session"`
}

type shareResponse struct {
	ID   string `json:"id,omitempty"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url"`
}

type sharedResponse struct {
	Session  session.Session `json:"session"`
	OwnerID  string          `json:"ownerId,omitempty"`
	ReadOnly bool            `json:"readOnly"`
	Legacy   bool            `json:"legacy,omitempty"`
}

// handleShareCreate publishes a session under a new id.
func (s *Server) handleShareCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.share_create"
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.sessionBody(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Billing != nil {
		if err := s.deps.Billing.Require(r.Context(), uid, billing.CanExport); err != nil {
			s.fail(w, r, Wrap(op, err))
			return
		}
	}
	shared, err := s.deps.Shares.SaveShared(r.Context(), uid, sess)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	metrics.RecordShareLink("id", "create")
	writeJSON(w, http.StatusCreated, shareResponse{ID: shared.ID, URL: s.shareURL("id", shared.ID)})
}

// handleShareLegacy encodes the session into the link itself.
func (s *Server) handleShareLegacy(w http.ResponseWriter, r *http.Request) {
	const op = "api.share_legacy"
	sess, err := s.sessionBody(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := share.Compress(sess)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	metrics.RecordShareLink("data", "create")
	writeJSON(w, http.StatusOK, shareResponse{Data: data, URL: s.shareURL("data", data)})
}

// handleShareGet opens a shared session by ?id= or legacy ?data=. Shared
// sessions are always read-only.
func (s *Server) handleShareGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.share_get"
	q := r.URL.Query()
	switch {
	case q.Get("id") != "":
		shared, err := s.deps.Shares.GetShared(r.Context(), q.Get("id"))
		if err != nil {
			s.fail(w, r, Wrap(op, err))
			return
		}
		metrics.RecordShareLink("id", "open")
		writeJSON(w, http.StatusOK, sharedResponse{Session: shared.Session, OwnerID: shared.OwnerID, ReadOnly: true})
	case q.Has("data"):
		// Query decoding turns '+' into a space; the payload never has spaces.
		payload := strings.ReplaceAll(q.Get("data"), " ", "+")
		sess, err := share.Decompress(payload)
		if err != nil {
			metrics.RecordShareLink("data", "invalid")
			s.fail(w, r, Wrap(op, err))
			return
		}
		metrics.RecordShareLink("data", "open")
		writeJSON(w, http.StatusOK, sharedResponse{Session: sess, ReadOnly: true, Legacy: true})
	default:
		s.fail(w, r, WrapKind(op, ErrBadRequest, errNoID))
	}
}

func (s *Server) sessionBody(r *http.Request, op string) (session.Session, error) {
	var req shareRequest
	if err := decodeJSON(r, op, &req); err != nil {
		return session.Session{}, err
	}
	if req.Session == nil {
		return session.Session{}, WrapKind(op, ErrBadRequest, errNoSession)
	}
	return *req.Session, nil
}

func (s *Server) shareURL(param, value string) string {
	return strings.TrimRight(s.publicURL, "/") + "/?" + url.Values{param: {value}}.Encode()
}

