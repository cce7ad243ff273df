// Package session groups drills into a training session.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/pepai/internal/domain/drill"
)

// DateLayout is the calendar date format sessions carry.
const DateLayout = "2006-01-02"

// Session is an ordered plan of drills for one training.
type Session struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Date   string        `json:"date"`
	Team   string        `json:"team"`
	Drills []drill.Drill `json:"drills"`
	Notes  string        `json:"notes,omitempty"`
}

// New returns an empty session dated today.
func New(title, team string) Session {
	return Session{
		ID:     drill.NewID(),
		Title:  title,
		Team:   team,
		Date:   time.Now().Format(DateLayout),
		Drills: []drill.Drill{},
	}
}

// Add appends d, or replaces the drill with the same id.
func (s *Session) Add(d drill.Drill) {
	for i := range s.Drills {
		if s.Drills[i].ID == d.ID {
			s.Drills[i] = d
			return
		}
	}
	s.Drills = append(s.Drills, d)
}

// Remove drops the drill with id and reports whether it existed.
func (s *Session) Remove(id string) bool {
	for i := range s.Drills {
		if s.Drills[i].ID == id {
			s.Drills = append(s.Drills[:i], s.Drills[i+1:]...)
			return true
		}
	}
	return false
}

// rawSession defers drill decoding to the normalizer.
type rawSession struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Date   string            `json:"date"`
	Team   string            `json:"team"`
	Drills []json.RawMessage `json:"drills"`
	Notes  string            `json:"notes"`
}

// Decode parses a session document, normalizing every drill so older
// documents (single category, missing element ids) come back canonical.
func Decode(data []byte) (Session, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	s := Session{
		ID:     raw.ID,
		Title:  raw.Title,
		Date:   raw.Date,
		Team:   raw.Team,
		Notes:  raw.Notes,
		Drills: make([]drill.Drill, 0, len(raw.Drills)),
	}
	if s.ID == "" {
		s.ID = drill.NewID()
	}
	for i, rd := range raw.Drills {
		d, err := drill.NormalizeRaw(rd, "")
		if err != nil {
			return Session{}, fmt.Errorf("decode session drill %d: %w", i, err)
		}
		s.Drills = append(s.Drills, d)
	}
	return s, nil
}
