package pitch

import "github.com/okian/pepai/internal/domain/drill"

// Tool is the active editing tool.
type Tool string

const (
	ToolSelect  Tool = "select"
	ToolPlayer  Tool = "player"
	ToolCone    Tool = "cone"
	ToolBall    Tool = "ball"
	ToolGoal    Tool = "goal"
	ToolPass    Tool = "pass"
	ToolDribble Tool = "dribble"
	ToolRun     Tool = "run"
)

// Tools lists every tool in toolbar order.
var Tools = []Tool{ToolSelect, ToolPlayer, ToolCone, ToolBall, ToolGoal, ToolPass, ToolDribble, ToolRun}

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	for _, k := range Tools {
		if k == t {
			return true
		}
	}
	return false
}

// Marker returns the marker type a placement tool creates.
func (t Tool) Marker() (drill.MarkerType, bool) {
	switch t {
	case ToolPlayer, ToolCone, ToolBall, ToolGoal:
		return drill.MarkerType(t), true
	}
	return "", false
}

// Arrow returns the arrow type a drawing tool creates.
func (t Tool) Arrow() (drill.ArrowType, bool) {
	switch t {
	case ToolPass, ToolDribble, ToolRun:
		return drill.ArrowType(t), true
	}
	return "", false
}

// SelectionKind says what, if anything, is selected.
type SelectionKind int

const (
	SelectedNone SelectionKind = iota
	SelectedMarker
	SelectedArrow
)

// Selection is at most one marker or one arrow, never both.
type Selection struct {
	Kind SelectionKind `json:"kind"`
	ID   string        `json:"id,omitempty"`
}

// MarshalText renders the kind as a word for JSON output.
func (k SelectionKind) MarshalText() ([]byte, error) {
	switch k {
	case SelectedMarker:
		return []byte("marker"), nil
	case SelectedArrow:
		return []byte("arrow"), nil
	}
	return []byte("none"), nil
}
