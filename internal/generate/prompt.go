package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/okian/pepai/internal/domain/drill"
)

// Prompt is one model request.
type Prompt struct {
	System string
	User   string
	// Structured constrains the response to the drill JSON schema.
	Structured bool
}

// Model is a generative model backend.
type Model interface {
	// Stream yields response text chunks in order. An error ends the stream.
	Stream(ctx context.Context, p Prompt) iter.Seq2[string, error]
	// Complete returns the whole response text.
	Complete(ctx context.Context, p Prompt) (string, error)
}

// DrillSystemPrompt instructs the one-shot endpoint model.
const DrillSystemPrompt = `You are an expert soccer coach and session designer. The user will describe a single drill they want. Create exactly ONE drill that matches their description, including a detailed visual layout.

Respond with valid JSON only. Return exactly this shape: { "drill": { ... } }

The drill object must have:
- id (string, use a random UUID)
- name (string)
- categories (array of strings, choose one or more from: "Technical", "Physical", "Tactical", "Situational", "Mental", "Play")
- duration (string, e.g. "15m")
- players (string, e.g. "8-12")
- setup (string, how to set up the grid and players)
- instructions (array of strings, step-by-step how to run the drill)
- coachingPoints (array of strings, key things for the coach to look for)
- layout (string, one of: "full", "half", "grid")
- positions (array of objects):
    - id (string)
    - x (number, 0-100, where 0 is left and 100 is right)
    - y (number, 0-100, where 0 is top and 100 is bottom)
    - label (string, e.g. "P1", "GK", "Blue")
    - type (string, one of: "player", "cone", "ball", "goal")
    - color (string, hex color code)
- arrows (array of objects):
    - id (string)
    - start ({ x: number, y: number })
    - end ({ x: number, y: number })
    - type (string, one of: "pass", "dribble", "run")
    - color (string, hex color code)

Visual Layout Guidelines:
- For "full" or "half" pitch, place goals at the ends.
- For "grid", create a box using cones at the corners.
- Distribute players realistically according to the drill description.
- Use arrows to represent the primary movements or passes described in the instructions.

No markdown, no code fences, no explanation. Only the raw JSON object.`

// GeneratePrompt builds the streamed generation request.
func GeneratePrompt(request string) Prompt {
	return Prompt{
		User: fmt.Sprintf("You are an elite soccer coach. Create a tactical drill for: \"%s\". \n"+
			"Pitch grid is 0-100. Provide clear instructions and high-quality tactical positioning. \n"+
			"Respond ONLY with valid JSON.", request),
		Structured: true,
	}
}

// RefinePrompt builds the streamed refinement request.
func RefinePrompt(current drill.Drill, instruction string) (Prompt, error) {
	doc, err := json.Marshal(current)
	if err != nil {
		return Prompt{}, fmt.Errorf("marshal drill: %w", err)
	}
	return Prompt{
		User: fmt.Sprintf("Update this drill: %s. \n"+
			"Modification requested: \"%s\". \n"+
			"Return the FULL updated JSON drill object. Keep coordinates precise on the 0-100 grid.", doc, instruction),
		Structured: true,
	}, nil
}

// OneShotPrompt builds the request of the one-shot drills endpoint.
func OneShotPrompt(request string) Prompt {
	return Prompt{System: DrillSystemPrompt, User: "Coach request: " + request}
}

// CleanPrompt trims p and enforces the length limit in characters.
func CleanPrompt(p string, maxLen int) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrEmptyPrompt
	}
	if maxLen > 0 && utf8.RuneCountInString(p) > maxLen {
		return "", fmt.Errorf("%w: prompt must be at most %d characters", ErrPromptTooLong, maxLen)
	}
	return p, nil
}
