// Package voice bridges a coach's browser to a real-time multimodal model.
//
// Audio and text flow both ways. Tool calls from the model are applied to the
// drill the bridge owns, and every change is pushed back to the client.
package voice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/pepai/internal/domain/drill"
)

// InputAudioMIME is the format microphone audio is streamed in.
const InputAudioMIME = "audio/pcm;rate=16000"

// Tool names the model may call.
const (
	ToolAddPlayer  = "addPlayer"
	ToolAddArrow   = "addArrow"
	ToolClearPitch = "clearPitch"
)

// SessionConfig is what the upstream session is opened with.
type SessionConfig struct {
	SystemInstruction string
}

// ToolCall is one function call requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Message is one upstream server message, flattened.
type Message struct {
	Audio            []byte
	AudioMIME        string
	InputTranscript  string
	OutputTranscript string
	Interrupted      bool
	TurnComplete     bool
	ToolCalls        []ToolCall
}

// Upstream is an open real-time model session. Receive blocks until a message
// arrives; Close unblocks it.
type Upstream interface {
	SendAudio(ctx context.Context, pcm []byte, mimeType string) error
	SendText(ctx context.Context, text string) error
	SendToolResults(ctx context.Context, results []ToolResult) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Dialer opens upstream sessions.
type Dialer interface {
	Dial(ctx context.Context, cfg SessionConfig) (Upstream, error)
}

// Client message types.
const (
	ClientAudio = "audio"
	ClientText  = "text"
	ClientDrill = "drill"
	ClientStop  = "stop"
)

// Server message types.
const (
	ServerReady        = "ready"
	ServerTranscript   = "transcript"
	ServerAudio        = "audio"
	ServerInterrupted  = "interrupted"
	ServerTurnComplete = "turnComplete"
	ServerDrill        = "drill"
	ServerError        = "error"
)

// ClientMessage is a frame from the browser. Audio is base64 in JSON.
type ClientMessage struct {
	Type  string       `json:"type"`
	Audio []byte       `json:"audio,omitempty"`
	Text  string       `json:"text,omitempty"`
	Drill *drill.Drill `json:"drill,omitempty"`
}

// ServerMessage is a frame to the browser.
type ServerMessage struct {
	Type  string       `json:"type"`
	Role  string       `json:"role,omitempty"`
	Text  string       `json:"text,omitempty"`
	Audio []byte       `json:"audio,omitempty"`
	MIME  string       `json:"mime,omitempty"`
	Drill *drill.Drill `json:"drill,omitempty"`
	Error string       `json:"error,omitempty"`
}

// ClientConn is the browser side. ReadMessage blocks; Close unblocks it.
type ClientConn interface {
	ReadMessage(ctx context.Context) (ClientMessage, error)
	WriteMessage(ctx context.Context, msg ServerMessage) error
	Close() error
}

// SystemInstruction primes the assistant with the drill being edited.
func SystemInstruction(d drill.Drill) string {
	doc, err := json.Marshal(d)
	if err != nil {
		doc = []byte("{}")
	}
	return fmt.Sprintf(`You are Pep Guardiola, a tactical genius and world-class soccer coach. You are helping a coach design a drill. You can talk back and you have access to tools to modify the drill markers on a 100x100 grid.
IMPORTANT: You MUST ONLY modify the markers if asked. If you add a player, it appears on the pitch.
Current Drill Context: %s
Be enthusiastic, detailed, and use tactical jargon like 'half-spaces', 'low-block', and 'positional play'.`, doc)
}
