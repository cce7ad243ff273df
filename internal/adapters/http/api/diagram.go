package api

import (
	"net/http"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/pitch"
)

type gesturesRequest struct {
	Drill    drill.Drill     `json:"drill"`
	Viewport *pitch.Viewport `json:"viewport,omitempty"`
	Gestures []pitch.Gesture `json:"gestures"`
	ReadOnly bool            `json:"readOnly,omitempty"`
}

// handleGestures replays recorded editor input against a drill and returns
// the result. Clients without a canvas edit diagrams through it.
func (s *Server) handleGestures(w http.ResponseWriter, r *http.Request) {
	const op = "api.diagram_gestures"
	var req gesturesRequest
	if err := decodeJSON(r, op, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := pitch.Replay(drill.Canonical(req.Drill), req.Viewport, req.Gestures, pitch.WithReadOnly(req.ReadOnly))
	if err != nil {
		s.fail(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
