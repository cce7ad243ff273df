// Package drill defines the canonical drill model and the normalizer that
// turns model output or stored documents into it.
package drill

import (
	"math"

	"github.com/google/uuid"
)

// Category tags a drill. A drill always carries at least one.
type Category string

const (
	Technical   Category = "Technical"
	Physical    Category = "Physical"
	Tactical    Category = "Tactical"
	Situational Category = "Situational"
	Mental      Category = "Mental"
	Play        Category = "Play"
)

// Categories lists every tag in display order.
var Categories = []Category{Technical, Physical, Tactical, Situational, Mental, Play}

// DefaultCategory is used whenever a drill would otherwise have none.
const DefaultCategory = Tactical

// Layout selects the pitch background.
type Layout string

const (
	LayoutFull Layout = "full"
	LayoutHalf Layout = "half"
	LayoutGrid Layout = "grid"
)

// MarkerType is the kind of element placed on the pitch.
type MarkerType string

const (
	Player MarkerType = "player"
	Cone   MarkerType = "cone"
	Ball   MarkerType = "ball"
	Goal   MarkerType = "goal"
)

// GoalSize only applies to goal markers.
type GoalSize string

const (
	GoalSmall  GoalSize = "small"
	GoalMedium GoalSize = "medium"
	GoalLarge  GoalSize = "large"
)

// ArrowType is the movement an arrow depicts.
type ArrowType string

const (
	Pass    ArrowType = "pass"
	Dribble ArrowType = "dribble"
	Run     ArrowType = "run"
)

// Logical canvas bounds. Every coordinate lives in [MinCoord, MaxCoord].
const (
	MinCoord = 0.0
	MaxCoord = 100.0
)

// PlayerColor is the default fill for player markers added interactively.
const PlayerColor = "#2563eb"

// Point is a logical pitch coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Clamp returns p with both axes clamped to the canvas.
func (p Point) Clamp() Point {
	return Point{X: ClampCoord(p.X), Y: ClampCoord(p.Y)}
}

// Dist is the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// ClampCoord clamps v to [MinCoord, MaxCoord]. NaN maps to the centre line.
func ClampCoord(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return (MinCoord + MaxCoord) / 2
	case v < MinCoord:
		return MinCoord
	case v > MaxCoord:
		return MaxCoord
	}
	return v
}

// Position is a marker on the pitch.
type Position struct {
	ID    string     `json:"id"`
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Label string     `json:"label"`
	Type  MarkerType `json:"type"`
	Color string     `json:"color,omitempty"`
	Size  GoalSize   `json:"size,omitempty"`
}

// Point returns the marker location.
func (p Position) Point() Point { return Point{X: p.X, Y: p.Y} }

// Arrow is a directed movement between two points.
type Arrow struct {
	ID    string    `json:"id"`
	Start Point     `json:"start"`
	End   Point     `json:"end"`
	Type  ArrowType `json:"type"`
	Color string    `json:"color,omitempty"`
}

// Drill is the canonical drill document.
type Drill struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Categories     []Category `json:"categories"`
	Duration       string     `json:"duration"`
	Players        string     `json:"players"`
	Setup          string     `json:"setup"`
	Instructions   []string   `json:"instructions"`
	CoachingPoints []string   `json:"coachingPoints"`
	Layout         Layout     `json:"layout"`
	Positions      []Position `json:"positions"`
	Arrows         []Arrow    `json:"arrows"`
}

// NewID returns a fresh element or document id.
func NewID() string { return uuid.NewString() }

// New returns the blank template used for manual entry.
func New() Drill {
	return Drill{
		ID:             NewID(),
		Name:           "New Drill",
		Categories:     []Category{Tactical},
		Duration:       "15m",
		Players:        "10",
		Setup:          "Basic area setup.",
		Instructions:   []string{"Starting position..."},
		CoachingPoints: []string{"Focus on..."},
		Layout:         LayoutFull,
		Positions:      []Position{},
		Arrows:         []Arrow{},
	}
}

// Clone returns a deep copy.
func (d Drill) Clone() Drill {
	c := d
	c.Categories = append(make([]Category, 0, len(d.Categories)), d.Categories...)
	c.Instructions = append(make([]string, 0, len(d.Instructions)), d.Instructions...)
	c.CoachingPoints = append(make([]string, 0, len(d.CoachingPoints)), d.CoachingPoints...)
	c.Positions = append(make([]Position, 0, len(d.Positions)), d.Positions...)
	c.Arrows = append(make([]Arrow, 0, len(d.Arrows)), d.Arrows...)
	return c
}

// Reuse copies d under a fresh document id. Element ids are kept; they only
// need to be unique within a drill.
func (d Drill) Reuse() Drill {
	c := d.Clone()
	c.ID = NewID()
	return c
}

// CountType returns how many markers of type t the drill holds.
func (d Drill) CountType(t MarkerType) int {
	n := 0
	for _, p := range d.Positions {
		if p.Type == t {
			n++
		}
	}
	return n
}

// PositionIndex returns the index of the marker with id, or -1.
func (d Drill) PositionIndex(id string) int {
	for i := range d.Positions {
		if d.Positions[i].ID == id {
			return i
		}
	}
	return -1
}

// ArrowIndex returns the index of the arrow with id, or -1.
func (d Drill) ArrowIndex(id string) int {
	for i := range d.Arrows {
		if d.Arrows[i].ID == id {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the known tags.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	return l == LayoutFull || l == LayoutHalf || l == LayoutGrid
}

// Valid reports whether t is a known marker type.
func (t MarkerType) Valid() bool {
	return t == Player || t == Cone || t == Ball || t == Goal
}

// Valid reports whether s is a known goal size.
func (s GoalSize) Valid() bool {
	return s == GoalSmall || s == GoalMedium || s == GoalLarge
}

// Valid reports whether t is a known arrow type.
func (t ArrowType) Valid() bool {
	return t == Pass || t == Dribble || t == Run
}
