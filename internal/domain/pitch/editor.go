// Package pitch implements the headless diagram editor: tools, pointer
// gestures, hit testing and selection over a drill's markers and arrows.
//
// All coordinates are logical (0-100 on both axes). A Viewport converts
// client pixels into that space.
package pitch

import (
	"math"
	"strconv"

	"github.com/okian/pepai/internal/domain/drill"
)

// Hit-test geometry in logical units. The renderer draws a 1000px canvas for
// 100 units, so a 60px arrow hit stroke is 3 units and a 15px handle is 1.5.
const (
	MarkerHitRadius  = 3.0
	ArrowHitDistance = 3.0
	HandleHitRadius  = 1.5

	// MinArrowLength is the length an arrow must exceed to be committed.
	MinArrowLength = 1.5
)

// State is the gesture state of the editor.
type State int

const (
	Idle State = iota
	PlacingMarker
	DraggingMarker
	DraggingArrowBody
	DraggingArrowEndpoint
	DrawingArrow
)

var stateNames = map[State]string{
	Idle:                  "idle",
	PlacingMarker:         "placing-marker",
	DraggingMarker:        "dragging-marker",
	DraggingArrowBody:     "dragging-arrow-body",
	DraggingArrowEndpoint: "dragging-arrow-endpoint",
	DrawingArrow:          "drawing-arrow",
}

func (s State) String() string { return stateNames[s] }

// Endpoint names one end of an arrow.
type Endpoint int

const (
	StartPoint Endpoint = iota
	EndPoint
)

// Editor mutates one drill in response to gestures. It is not safe for
// concurrent use; each editing surface owns its own Editor.
type Editor struct {
	drill    drill.Drill
	tool     Tool
	state    State
	sel      Selection
	readOnly bool

	dragID   string
	endpoint Endpoint
	last     drill.Point
	draft    drill.Arrow
}

// NewEditor starts editing a copy of d with the select tool active.
func NewEditor(d drill.Drill, opts ...Option) *Editor {
	e := &Editor{drill: d.Clone(), tool: ToolSelect}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Drill returns a copy of the current drill.
func (e *Editor) Drill() drill.Drill { return e.drill.Clone() }

// Tool returns the active tool.
func (e *Editor) Tool() Tool { return e.tool }

// State returns the gesture state.
func (e *Editor) State() State { return e.state }

// Selection returns the selected element, if any.
func (e *Editor) Selection() Selection { return e.sel }

// ReadOnly reports whether gestures are ignored.
func (e *Editor) ReadOnly() bool { return e.readOnly }

// Draft returns the arrow being drawn and whether one exists.
func (e *Editor) Draft() (drill.Arrow, bool) {
	return e.draft, e.state == DrawingArrow
}

// SetTool switches tools, abandoning any gesture in progress.
func (e *Editor) SetTool(t Tool) error {
	if !t.Valid() {
		return ErrUnknownTool
	}
	if e.readOnly {
		return ErrReadOnly
	}
	e.tool = t
	e.resetGesture()
	return nil
}

// PointerDown starts a gesture at p.
func (e *Editor) PointerDown(p drill.Point) {
	if e.readOnly {
		return
	}
	p = p.Clamp()

	if mt, ok := e.tool.Marker(); ok {
		id := e.placeMarker(mt, p, "")
		e.sel = Selection{Kind: SelectedMarker, ID: id}
		e.tool = ToolSelect
		e.state = Idle
		return
	}

	if at, ok := e.tool.Arrow(); ok {
		e.draft = drill.Arrow{Start: p, End: p, Type: at}
		e.state = DrawingArrow
		return
	}

	e.selectAt(p)
}

func (e *Editor) selectAt(p drill.Point) {
	// Handles of the selected arrow sit above everything else.
	if e.sel.Kind == SelectedArrow {
		if i := e.drill.ArrowIndex(e.sel.ID); i >= 0 {
			a := e.drill.Arrows[i]
			switch {
			case p.Dist(a.Start) <= HandleHitRadius:
				e.beginEndpointDrag(a.ID, StartPoint)
				return
			case p.Dist(a.End) <= HandleHitRadius:
				e.beginEndpointDrag(a.ID, EndPoint)
				return
			}
		}
	}

	if id, ok := e.markerAt(p); ok {
		e.sel = Selection{Kind: SelectedMarker, ID: id}
		e.dragID = id
		e.state = DraggingMarker
		return
	}

	if id, ok := e.arrowAt(p); ok {
		e.sel = Selection{Kind: SelectedArrow, ID: id}
		e.dragID = id
		e.last = p
		e.state = DraggingArrowBody
		return
	}

	e.sel = Selection{}
	e.state = Idle
}

func (e *Editor) beginEndpointDrag(id string, which Endpoint) {
	e.dragID = id
	e.endpoint = which
	e.state = DraggingArrowEndpoint
}

// PointerMove continues the current gesture.
func (e *Editor) PointerMove(p drill.Point) {
	if e.readOnly {
		return
	}
	p = p.Clamp()

	switch e.state {
	case DraggingMarker:
		if i := e.drill.PositionIndex(e.dragID); i >= 0 {
			e.drill.Positions[i].X = p.X
			e.drill.Positions[i].Y = p.Y
		}
	case DraggingArrowEndpoint:
		if i := e.drill.ArrowIndex(e.dragID); i >= 0 {
			if e.endpoint == StartPoint {
				e.drill.Arrows[i].Start = p
			} else {
				e.drill.Arrows[i].End = p
			}
		}
	case DraggingArrowBody:
		if i := e.drill.ArrowIndex(e.dragID); i >= 0 {
			e.drill.Arrows[i] = translate(e.drill.Arrows[i], p.X-e.last.X, p.Y-e.last.Y)
		}
		e.last = p
	case DrawingArrow:
		e.draft.End = p
	}
}

// PointerUp ends the current gesture. A drawn arrow is committed and
// selected only if it is longer than MinArrowLength.
func (e *Editor) PointerUp(p drill.Point) {
	if e.readOnly {
		return
	}
	if e.state == DrawingArrow {
		e.draft.End = p.Clamp()
		if e.draft.Start.Dist(e.draft.End) > MinArrowLength {
			id := e.addArrow(e.draft)
			e.sel = Selection{Kind: SelectedArrow, ID: id}
		}
		e.draft = drill.Arrow{}
	}
	e.resetGesture()
}

// Delete removes the marker or arrow with id and clears any selection of it.
func (e *Editor) Delete(id string) bool {
	if e.readOnly {
		return false
	}
	removed := false
	if i := e.drill.PositionIndex(id); i >= 0 {
		e.drill.Positions = append(e.drill.Positions[:i], e.drill.Positions[i+1:]...)
		removed = true
	} else if i := e.drill.ArrowIndex(id); i >= 0 {
		e.drill.Arrows = append(e.drill.Arrows[:i], e.drill.Arrows[i+1:]...)
		removed = true
	}
	if removed && e.sel.ID == id {
		e.sel = Selection{}
	}
	if removed && e.dragID == id {
		e.resetGesture()
	}
	return removed
}

// DeleteSelected removes whatever is selected.
func (e *Editor) DeleteSelected() bool {
	if e.sel.Kind == SelectedNone {
		return false
	}
	return e.Delete(e.sel.ID)
}

// AddMarker places a marker directly, as tool calls do. An empty player
// label is filled with the next player number.
func (e *Editor) AddMarker(t drill.MarkerType, p drill.Point, label string) (string, error) {
	if e.readOnly {
		return "", ErrReadOnly
	}
	if !t.Valid() {
		return "", ErrUnknownTool
	}
	return e.placeMarker(t, p.Clamp(), label), nil
}

// AddArrow adds an arrow directly, as tool calls do. The length threshold
// only applies to drawn arrows.
func (e *Editor) AddArrow(start, end drill.Point, t drill.ArrowType) (string, error) {
	if e.readOnly {
		return "", ErrReadOnly
	}
	if !t.Valid() {
		return "", ErrUnknownTool
	}
	return e.addArrow(drill.Arrow{Start: start.Clamp(), End: end.Clamp(), Type: t}), nil
}

// Clear removes every marker and arrow.
func (e *Editor) Clear() error {
	if e.readOnly {
		return ErrReadOnly
	}
	e.drill.Positions = []drill.Position{}
	e.drill.Arrows = []drill.Arrow{}
	e.sel = Selection{}
	e.resetGesture()
	return nil
}

// Replace swaps in a new drill (e.g. after refinement), keeping the selection
// only if the element still exists.
func (e *Editor) Replace(d drill.Drill) {
	e.drill = d.Clone()
	e.resetGesture()
	switch e.sel.Kind {
	case SelectedMarker:
		if e.drill.PositionIndex(e.sel.ID) < 0 {
			e.sel = Selection{}
		}
	case SelectedArrow:
		if e.drill.ArrowIndex(e.sel.ID) < 0 {
			e.sel = Selection{}
		}
	}
}

func (e *Editor) placeMarker(t drill.MarkerType, p drill.Point, label string) string {
	pos := drill.Position{ID: drill.NewID(), X: p.X, Y: p.Y, Label: label, Type: t}
	if t == drill.Player {
		if pos.Label == "" {
			pos.Label = strconv.Itoa(e.drill.CountType(drill.Player) + 1)
		}
		pos.Color = drill.PlayerColor
	}
	if t == drill.Goal {
		pos.Size = drill.GoalMedium
	}
	e.drill.Positions = append(e.drill.Positions, pos)
	return pos.ID
}

func (e *Editor) addArrow(a drill.Arrow) string {
	a.ID = drill.NewID()
	e.drill.Arrows = append(e.drill.Arrows, a)
	return a.ID
}

func (e *Editor) resetGesture() {
	e.dragID = ""
	e.last = drill.Point{}
	e.draft = drill.Arrow{}
	e.state = Idle
	if _, ok := e.tool.Marker(); ok {
		e.state = PlacingMarker
	}
}

// markerAt returns the topmost marker within MarkerHitRadius of p. Later
// markers are drawn above earlier ones.
func (e *Editor) markerAt(p drill.Point) (string, bool) {
	for i := len(e.drill.Positions) - 1; i >= 0; i-- {
		if p.Dist(e.drill.Positions[i].Point()) <= MarkerHitRadius {
			return e.drill.Positions[i].ID, true
		}
	}
	return "", false
}

func (e *Editor) arrowAt(p drill.Point) (string, bool) {
	for i := len(e.drill.Arrows) - 1; i >= 0; i-- {
		a := e.drill.Arrows[i]
		if segmentDist(p, a.Start, a.End) <= ArrowHitDistance {
			return a.ID, true
		}
	}
	return "", false
}

// translate moves both endpoints by (dx, dy), limiting the delta so the
// arrow stays on the canvas.
func translate(a drill.Arrow, dx, dy float64) drill.Arrow {
	dx = clampDelta(dx, math.Min(a.Start.X, a.End.X), math.Max(a.Start.X, a.End.X))
	dy = clampDelta(dy, math.Min(a.Start.Y, a.End.Y), math.Max(a.Start.Y, a.End.Y))
	a.Start = drill.Point{X: a.Start.X + dx, Y: a.Start.Y + dy}
	a.End = drill.Point{X: a.End.X + dx, Y: a.End.Y + dy}
	return a
}

func clampDelta(d, lo, hi float64) float64 {
	if minD := drill.MinCoord - lo; d < minD {
		return minD
	}
	if maxD := drill.MaxCoord - hi; d > maxD {
		return maxD
	}
	return d
}

// segmentDist is the distance from p to the segment ab.
func segmentDist(p, a, b drill.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return p.Dist(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Dist(drill.Point{X: a.X + t*dx, Y: a.Y + t*dy})
}
