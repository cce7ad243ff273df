package api

import (
	"net/http"
	"strings"

	"github.com/okian/pepai/internal/adapters/mq/queue"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/billing"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/pkg/metrics"
)

// IdempotencyHeader carries the client's key for a history save.
const IdempotencyHeader = "Idempotency-Key"

type historyResponse struct {
	Drills []repository.SavedDrill `json:"drills"`
}

type saveRequest struct {
	Drill drill.Drill `json:"drill"`
}

type batchRequest struct {
	Drills []drill.Drill `json:"drills"`
}

type reuseRequest struct {
	ID string `json:"id"`
}

type saveAck struct {
	Status    string        `json:"status"`
	Duplicate bool          `json:"duplicate"`
	Key       string        `json:"key"`
	Drills    []drill.Drill `json:"drills"`
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	const op = "api.history_list"
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ds, err := s.deps.History.ListDrills(r.Context(), uid)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Drills: ds})
}

func (s *Server) handleHistorySave(w http.ResponseWriter, r *http.Request) {
	const op = "api.history_save"
	var req saveRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.accept(w, r, op, []drill.Drill{req.Drill})
}

func (s *Server) handleHistoryBatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.history_batch"
	var req batchRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req.Drills) == 0 {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errNoDrills))
		return
	}
	s.accept(w, r, op, req.Drills)
}

// accept records the idempotency key and queues ds for the workers. The
// drills are echoed back so the client keeps its copy whatever happens.
func (s *Server) accept(w http.ResponseWriter, r *http.Request, op string, ds []drill.Drill) {
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.deps.Billing != nil {
		if err := s.deps.Billing.Require(r.Context(), uid, billing.CanSave); err != nil {
			s.fail(w, r, Wrap(op, err))
			return
		}
	}

	canon := make([]drill.Drill, len(ds))
	for i, d := range ds {
		canon[i] = drill.Canonical(d)
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" {
		key = drill.NewID()
	}
	// Keys are scoped per user so two coaches can't collide.
	scoped := uid + ":" + key

	ctx := r.Context()
	if s.deps.Saves.SeenAndRecord(ctx, scoped) {
		metrics.RecordHistoryDuplicate()
		writeJSON(w, http.StatusOK, saveAck{Status: "duplicate", Duplicate: true, Key: key, Drills: canon})
		return
	}
	if !s.deps.Saves.Enqueue(ctx, queue.Job{Key: scoped, UID: uid, Drills: canon}) {
		s.deps.Saves.Unrecord(ctx, scoped)
		s.fail(w, r, NewKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, saveAck{Status: "accepted", Key: key, Drills: canon})
}

// handleHistoryReuse copies a saved drill under a fresh id for editing.
func (s *Server) handleHistoryReuse(w http.ResponseWriter, r *http.Request) {
	const op = "api.history_reuse"
	uid, err := requireUser(r, op)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req reuseRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ID == "" {
		s.fail(w, r, WrapKind(op, ErrBadRequest, errNoID))
		return
	}
	saved, err := s.deps.History.GetDrill(r.Context(), uid, req.ID)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	d := saved.Drill.Reuse()
	writeJSON(w, http.StatusOK, drillResponse{Drill: &d})
}
