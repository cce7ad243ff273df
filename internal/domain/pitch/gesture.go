package pitch

import (
	"fmt"

	"github.com/okian/pepai/internal/domain/drill"
)

// GestureKind names a recorded editor input.
type GestureKind string

const (
	GestureTool   GestureKind = "tool"
	GestureDown   GestureKind = "down"
	GestureMove   GestureKind = "move"
	GestureUp     GestureKind = "up"
	GestureDelete GestureKind = "delete"
	GestureClear  GestureKind = "clear"
)

// Gesture is one recorded input. Pointer gestures carry either logical X/Y
// or, when a Viewport is given to Replay, client pixels.
type Gesture struct {
	Kind GestureKind `json:"kind"`
	X    float64     `json:"x,omitempty"`
	Y    float64     `json:"y,omitempty"`
	Tool Tool        `json:"tool,omitempty"`
	// ID is the element to delete; empty deletes the selection.
	ID string `json:"id,omitempty"`
}

// Result is the editor state after a replay.
type Result struct {
	Drill     drill.Drill `json:"drill"`
	Selection Selection   `json:"selection"`
	Tool      Tool        `json:"tool"`
}

// Replay applies gestures in order to a fresh editor over d. A nil viewport
// means pointer coordinates are already logical.
func Replay(d drill.Drill, vp *Viewport, gestures []Gesture, opts ...Option) (Result, error) {
	e := NewEditor(d, opts...)
	point := func(g Gesture) drill.Point {
		if vp != nil {
			return vp.ToLogical(g.X, g.Y)
		}
		return drill.Point{X: g.X, Y: g.Y}
	}

	for i, g := range gestures {
		var err error
		switch g.Kind {
		case GestureTool:
			err = e.SetTool(g.Tool)
		case GestureDown:
			e.PointerDown(point(g))
		case GestureMove:
			e.PointerMove(point(g))
		case GestureUp:
			e.PointerUp(point(g))
		case GestureDelete:
			if g.ID == "" {
				e.DeleteSelected()
			} else {
				e.Delete(g.ID)
			}
		case GestureClear:
			err = e.Clear()
		default:
			err = ErrUnknownGesture
		}
		if err != nil {
			return Result{}, fmt.Errorf("gesture %d (%s): %w", i, g.Kind, err)
		}
	}
	return Result{Drill: e.Drill(), Selection: e.Selection(), Tool: e.Tool()}, nil
}
