package api

import (
	"net/http"
	"time"

	"github.com/okian/pepai/internal/domain/session"
)

type draftResponse struct {
	Session session.Session `json:"session"`
	SavedAt string          `json:"savedAt"`
}

func (s *Server) handleDraftGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.draft_get"
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.deps.Drafts.Load(r.Context(), uid)
	if isNotFound(err) {
		// Nothing saved yet: start a fresh session.
		writeJSON(w, http.StatusOK, draftResponse{Session: session.New("", "")})
		return
	}
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Session: d.Session, SavedAt: d.SavedAt.Format(time.RFC3339)})
}

func (s *Server) handleDraftPut(w http.ResponseWriter, r *http.Request) {
	const op = "api.draft_put"
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
	d, err := s.deps.Drafts.Save(r.Context(), uid, sess)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, draftResponse{Session: d.Session, SavedAt: d.SavedAt.Format(time.RFC3339)})
}

func (s *Server) handleDraftDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.draft_delete"
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Drafts.Delete(r.Context(), uid); err != nil && !isNotFound(err) {
		s.fail(w, r, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
