package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/pepai/internal/adapters/http/auth"
	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/pkg/logger"
)

type drillRequest struct {
	Prompt   string              `json:"prompt"`
	Currency repository.Currency `json:"currency,omitempty"`
}

type refineRequest struct {
	Drill       drill.Drill         `json:"drill"`
	Instruction string              `json:"instruction"`
	Currency    repository.Currency `json:"currency,omitempty"`
}

type drillResponse struct {
	Drill  *drill.Drill  `json:"drill,omitempty"`
	Drills []drill.Drill `json:"drills,omitempty"`
}

// handleDrills handles the one-shot POST /api/drills.
func (s *Server) handleDrills(w http.ResponseWriter, r *http.Request) {
	const op = "api.drills"
	var req drillRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	prompt, err := generate.CleanPrompt(req.Prompt, s.maxPromptLength)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	if !s.deps.Generator.Configured() {
		s.fail(w, r, Wrap(op, generate.ErrNotConfigured))
		return
	}
	refund, err := s.charge(r.Context(), req.Currency)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}

	s.logger.Debug(r.Context(), "drill request", logger.String("prompt", prompt))
	resp, err := s.deps.Generator.Complete(r.Context(), prompt)
	if err != nil {
		refund()
		s.fail(w, r, Wrap(op, err))
		return
	}
	if resp.Kind == drill.KindMulti {
		writeJSON(w, http.StatusOK, drillResponse{Drills: resp.Drills})
		return
	}
	first := resp.First()
	writeJSON(w, http.StatusOK, drillResponse{Drill: &first})
}

// handleDrillStream streams a new drill as server-sent events.
func (s *Server) handleDrillStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.drills_stream"
	var req drillRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	prompt, err := generate.CleanPrompt(req.Prompt, s.maxPromptLength)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	s.stream(w, r, op, req.Currency, "", func(ctx context.Context) <-chan generate.Event {
		return s.deps.Generator.Generate(ctx, prompt)
	})
}

// handleDrillRefine streams a refined drill. The drill keeps its id.
func (s *Server) handleDrillRefine(w http.ResponseWriter, r *http.Request) {
	const op = "api.drills_refine"
	var req refineRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	instruction, err := generate.CleanPrompt(req.Instruction, s.maxPromptLength)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	current := drill.Canonical(req.Drill)
	s.stream(w, r, op, req.Currency, current.ID, func(ctx context.Context) <-chan generate.Event {
		return s.deps.Generator.Refine(ctx, current, instruction)
	})
}

// handleDrillNew returns the blank manual-entry template.
func (s *Server) handleDrillNew(w http.ResponseWriter, _ *http.Request) {
	d := drill.New()
	writeJSON(w, http.StatusOK, drillResponse{Drill: &d})
}

// stream charges the caller, runs start and relays its events. Errors
// before the first byte are plain JSON; later ones are a failed event.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, op string, cur repository.Currency, existingID string, start func(context.Context) <-chan generate.Event) {
	if !s.deps.Generator.Configured() {
		s.fail(w, r, Wrap(op, generate.ErrNotConfigured))
		return
	}
	sse, err := newEventStream(w)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}
	refund, err := s.charge(r.Context(), cur)
	if err != nil {
		s.fail(w, r, Wrap(op, err))
		return
	}

	sse.open()
	d, err := generate.Collect(r.Context(), start(r.Context()), existingID, func(e generate.Event) {
		switch e.Kind {
		case generate.Progress:
			sse.send("progress", progressEvent{Text: e.Text, Attempt: e.Attempt})
		case generate.Retrying:
			sse.send("retrying", retryEvent{Attempt: e.Attempt, DelayMS: e.Delay.Milliseconds()})
		}
	})
	if err != nil {
		refund()
		if r.Context().Err() != nil {
			return
		}
		status, redirect := statusFor(err)
		s.logger.Warn(r.Context(), "drill stream failed", logger.String("op", op), logger.Int("status", status), logger.Error(err))
		sse.send("failed", errorResponse{Error: publicMessage(err, status, s.devMode), Redirect: redirect})
		return
	}
	sse.send("done", drillResponse{Drill: &d})
}

type progressEvent struct {
	Text    string `json:"text"`
	Attempt int    `json:"attempt"`
}

type retryEvent struct {
	Attempt int   `json:"attempt"`
	DelayMS int64 `json:"delayMs"`
}

// charge takes the cost of one generation when billing is enforced. The
// returned refund undoes it and is always safe to call.
func (s *Server) charge(ctx context.Context, cur repository.Currency) (func(), error) {
	noop := func() {}
	if s.deps.Billing == nil || !s.deps.Billing.Enforced() {
		return noop, nil
	}
	if cur == "" {
		cur = repository.Credits
	}
	uid := auth.UID(ctx)
	if _, err := s.deps.Billing.Charge(ctx, uid, cur); err != nil {
		return noop, err
	}
	return func() {
		if err := s.deps.Billing.Refund(context.WithoutCancel(ctx), uid, cur); err != nil {
			s.logger.Error(ctx, "refund failed", logger.String("uid", uid), logger.Error(err))
		}
	}, nil
}

// eventStream writes server-sent events.
type eventStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("%w: streaming unsupported", ErrUnavailable)
	}
	return &eventStream{w: w, f: f}, nil
}

func (e *eventStream) open() {
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)
	e.f.Flush()
}

func (e *eventStream) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	_, _ = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	e.f.Flush()
}
