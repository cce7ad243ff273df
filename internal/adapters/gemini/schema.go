package gemini

import (
	"google.golang.org/genai"

	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/voice"
)

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func num(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeNumber, Description: desc}
}

func enum[T ~string](vals ...T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

func point() *genai.Schema {
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{"x": num(""), "y": num("")},
		Required:   []string{"x", "y"},
	}
}

// DrillSchema constrains streamed generation to the drill document.
func DrillSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name": str("Catchy name for the drill"),
			"categories": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString, Enum: enum(drill.Categories...)},
				Description: "Select one or more categories that best describe the drill.",
			},
			"duration": str("e.g., 15 mins"),
			"players":  str("e.g., 8+2"),
			"layout":   {Type: genai.TypeString, Enum: enum(drill.LayoutFull, drill.LayoutHalf, drill.LayoutGrid)},
			"setup":    str("Brief description of the physical setup"),
			"instructions": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Step by step execution guide",
			},
			"coachingPoints": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "Key tactical reminders for players",
			},
			"positions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"x":     num("X coordinate 0-100"),
						"y":     num("Y coordinate 0-100"),
						"label": str(""),
						"type":  {Type: genai.TypeString, Enum: enum(drill.Player, drill.Cone, drill.Ball, drill.Goal)},
						"color": str(""),
					},
					Required: []string{"x", "y", "label", "type"},
				},
			},
			"arrows": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start": point(),
						"end":   point(),
						"type":  {Type: genai.TypeString, Enum: enum(drill.Pass, drill.Dribble, drill.Run)},
						"color": str(""),
					},
					Required: []string{"start", "end", "type"},
				},
			},
		},
		Required: []string{"name", "categories", "duration", "players", "layout", "setup",
			"instructions", "coachingPoints", "positions", "arrows"},
	}
}

// ToolDeclarations are the diagram tools offered to the live model.
func ToolDeclarations() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{
			Name:        voice.ToolAddPlayer,
			Description: "Add a player marker to the soccer pitch.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"x":     num("X coordinate (0-100)"),
					"y":     num("Y coordinate (0-100)"),
					"label": str(`Short label for the player (e.g., "1", "GK", "ST")`),
				},
				Required: []string{"x", "y", "label"},
			},
		},
		{
			Name:        voice.ToolAddArrow,
			Description: "Add a tactical arrow (pass, run, or dribble) to the pitch.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"startX": num("Starting X coordinate (0-100)"),
					"startY": num("Starting Y coordinate (0-100)"),
					"endX":   num("Ending X coordinate (0-100)"),
					"endY":   num("Ending Y coordinate (0-100)"),
					"type": {
						Type:        genai.TypeString,
						Enum:        enum(drill.Pass, drill.Dribble, drill.Run),
						Description: "The type of movement or action",
					},
				},
				Required: []string{"startX", "startY", "endX", "endY", "type"},
			},
		},
		{
			Name:        voice.ToolClearPitch,
			Description: "Clear all players and arrows from the current pitch.",
			Parameters:  &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}},
		},
	}
}
