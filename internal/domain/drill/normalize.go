package drill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("(?i)^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("(?i)\\s*```$")
)

// legacyCategories maps the single free-form category older drills carried.
var legacyCategories = map[string]Category{
	"Technical":   Technical,
	"Physical":    Physical,
	"Tactical":    Tactical,
	"Situational": Situational,
	"Mental":      Mental,
	"Warm-up":     Technical,
	"Possession":  Tactical,
	"Finishing":   Technical,
	"Transition":  Tactical,
}

// Kind tags the envelope a response arrived in.
type Kind int

const (
	// KindBare is a drill object at the top level.
	KindBare Kind = iota + 1
	// KindWrapped is {"drill": {...}}.
	KindWrapped
	// KindMulti is {"drills": [...]}.
	KindMulti
)

func (k Kind) String() string {
	switch k {
	case KindBare:
		return "bare"
	case KindWrapped:
		return "wrapped"
	case KindMulti:
		return "multi"
	}
	return "unknown"
}

// Response is a parsed model response. Drills is never empty.
type Response struct {
	Kind   Kind
	Drills []Drill
}

// First returns the first drill of the response.
func (r Response) First() Drill { return r.Drills[0] }

// envelope is the tagged-variant result of the first parse step.
type envelope struct {
	kind  Kind
	items []map[string]json.RawMessage
}

// StripFences trims whitespace and a surrounding markdown code fence.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	s = fenceOpen.ReplaceAllString(s, "")
	return fenceClose.ReplaceAllString(s, "")
}

// ParseResponse decodes the text returned by the one-shot drills endpoint.
// A bare object must look like a drill (name and instructions present).
// existingID only applies to single-drill responses.
func ParseResponse(text, existingID string) (Response, error) {
	return parse(text, existingID, true)
}

// Normalize decodes streamed or stored drill JSON into a canonical Drill.
// Wrapped and bare objects are accepted; a multi-drill payload yields its first drill.
func Normalize(text, existingID string) (Drill, error) {
	resp, err := parse(text, existingID, false)
	if err != nil {
		return Drill{}, err
	}
	return resp.First(), nil
}

// NormalizeRaw normalizes one drill object already split out of a larger document.
func NormalizeRaw(raw json.RawMessage, existingID string) (Drill, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Drill{}, fmt.Errorf("%w: drill is not an object", ErrMalformedResponse)
	}
	return canonical(obj, existingID), nil
}

// Canonical re-applies every normalization rule to an in-memory drill.
func Canonical(d Drill) Drill {
	raw, err := json.Marshal(d)
	if err != nil {
		return d
	}
	out, err := NormalizeRaw(raw, d.ID)
	if err != nil {
		return d
	}
	return out
}

func parse(text, existingID string, strict bool) (Response, error) {
	body := StripFences(text)
	if body == "" {
		return Response{}, ErrEmptyResponse
	}
	env, err := decodeEnvelope([]byte(body), strict)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Kind: env.kind, Drills: make([]Drill, 0, len(env.items))}
	for _, item := range env.items {
		id := existingID
		if env.kind == KindMulti {
			id = ""
		}
		resp.Drills = append(resp.Drills, canonical(item, id))
	}
	return resp, nil
}

func decodeEnvelope(body []byte, strict bool) (envelope, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if top == nil {
		return envelope{}, fmt.Errorf("%w: response is null", ErrMalformedResponse)
	}

	if raw, ok := top["drill"]; ok && !isNull(raw) {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil || inner == nil {
			return envelope{}, fmt.Errorf("%w: drill is not an object", ErrMalformedResponse)
		}
		return envelope{kind: KindWrapped, items: []map[string]json.RawMessage{inner}}, nil
	}

	if raw, ok := top["drills"]; ok && isArray(raw) {
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return envelope{}, fmt.Errorf("%w: drills must be objects", ErrMalformedResponse)
		}
		items := list[:0]
		for _, it := range list {
			if it != nil {
				items = append(items, it)
			}
		}
		if len(items) == 0 {
			return envelope{}, fmt.Errorf("%w: drills is empty", ErrMalformedResponse)
		}
		return envelope{kind: KindMulti, items: items}, nil
	}

	if strict {
		_, hasName := top["name"]
		_, hasInstructions := top["instructions"]
		if !hasName || !hasInstructions {
			return envelope{}, fmt.Errorf("%w: invalid drill response shape", ErrMalformedResponse)
		}
	}
	return envelope{kind: KindBare, items: []map[string]json.RawMessage{top}}, nil
}

func canonical(obj map[string]json.RawMessage, existingID string) Drill {
	d := Drill{
		ID:             firstNonEmpty(existingID, looseString(obj["id"]), NewID()),
		Name:           looseString(obj["name"]),
		Categories:     categoriesOf(obj),
		Duration:       looseString(obj["duration"]),
		Players:        looseString(obj["players"]),
		Setup:          looseString(obj["setup"]),
		Instructions:   looseStrings(obj["instructions"]),
		CoachingPoints: looseStrings(obj["coachingPoints"]),
		Layout:         Layout(strings.ToLower(looseString(obj["layout"]))),
		Positions:      []Position{},
		Arrows:         []Arrow{},
	}
	if !d.Layout.Valid() {
		d.Layout = LayoutFull
	}

	seen := make(map[string]struct{})
	uniqueID := func(id string) string {
		if _, dup := seen[id]; id == "" || dup {
			id = NewID()
		}
		seen[id] = struct{}{}
		return id
	}

	for _, p := range objects(obj["positions"]) {
		pos := Position{
			ID:    looseString(p["id"]),
			X:     ClampCoord(looseFloat(p["x"])),
			Y:     ClampCoord(looseFloat(p["y"])),
			Label: looseString(p["label"]),
			Type:  MarkerType(strings.ToLower(looseString(p["type"]))),
			Color: looseString(p["color"]),
			Size:  GoalSize(strings.ToLower(looseString(p["size"]))),
		}
		if !pos.Type.Valid() {
			pos.Type = Player
		}
		if pos.Type != Goal || !pos.Size.Valid() {
			pos.Size = ""
		}
		pos.ID = uniqueID(pos.ID)
		d.Positions = append(d.Positions, pos)
	}

	for _, a := range objects(obj["arrows"]) {
		arrow := Arrow{
			ID:    looseString(a["id"]),
			Start: pointOf(a["start"]),
			End:   pointOf(a["end"]),
			Type:  ArrowType(strings.ToLower(looseString(a["type"]))),
			Color: looseString(a["color"]),
		}
		if !arrow.Type.Valid() {
			arrow.Type = Pass
		}
		arrow.ID = uniqueID(arrow.ID)
		d.Arrows = append(d.Arrows, arrow)
	}
	return d
}

// categoriesOf resolves the tag list. The legacy single category is only
// consulted when no categories array exists.
func categoriesOf(obj map[string]json.RawMessage) []Category {
	var out []Category
	add := func(c Category) {
		for _, have := range out {
			if have == c {
				return
			}
		}
		out = append(out, c)
	}

	if raw, ok := obj["categories"]; ok && isArray(raw) {
		for _, s := range looseStrings(raw) {
			if c, ok := lookupCategory(s); ok {
				add(c)
			}
		}
	} else if legacy := looseString(obj["category"]); legacy != "" {
		add(LegacyCategory(legacy))
	}

	if len(out) == 0 {
		out = []Category{DefaultCategory}
	}
	return out
}

// LegacyCategory maps a pre-multi-tag category string onto a tag.
func LegacyCategory(s string) Category {
	if c, ok := legacyCategories[strings.TrimSpace(s)]; ok {
		return c
	}
	return DefaultCategory
}

func lookupCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	c, ok := legacyCategories[s]
	return c, ok
}

func pointOf(raw json.RawMessage) Point {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Point{X: ClampCoord(math.NaN()), Y: ClampCoord(math.NaN())}
	}
	return Point{X: ClampCoord(looseFloat(obj["x"])), Y: ClampCoord(looseFloat(obj["y"]))}
}

func objects(raw json.RawMessage) []map[string]json.RawMessage {
	if !isArray(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]map[string]json.RawMessage, 0, len(items))
	for _, it := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(it, &obj); err == nil && obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

// looseString accepts a JSON string or number; anything else is empty.
func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// looseStrings accepts an array of strings or a single string.
func looseStrings(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if !isArray(raw) {
		if s := looseString(raw); s != "" {
			out = append(out, s)
		}
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, it := range items {
		if s := looseString(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// looseFloat accepts a number or numeric string. Missing or invalid yields NaN.
func looseFloat(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return v
		}
	}
	return math.NaN()
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
