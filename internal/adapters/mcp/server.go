// Package mcp exposes the pitch editor, drill generation and share links
// as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/okian/pepai/internal/adapters/repository"
	"github.com/okian/pepai/internal/domain/drill"
	"github.com/okian/pepai/internal/domain/pitch"
	"github.com/okian/pepai/internal/domain/session"
	"github.com/okian/pepai/internal/generate"
	"github.com/okian/pepai/internal/share"
	"github.com/okian/pepai/pkg/logger"
	"github.com/okian/pepai/pkg/metrics"
)

// Version is reported to clients during initialization.
const Version = "1.0.0"

// Generator answers one-shot drill requests.
type Generator interface {
	Configured() bool
	Complete(ctx context.Context, request string) (drill.Response, error)
}

// Shares resolves id share links.
type Shares interface {
	GetShared(ctx context.Context, id string) (repository.SharedSession, error)
}

// Server holds one drill that the diagram tools edit.
type Server struct {
	mcp             *server.MCPServer
	gen             Generator
	shares          Shares
	maxPromptLength int
	logger          logger.Logger

	mu     sync.Mutex
	editor *pitch.Editor
}

// NewServer creates a server editing a blank drill.
func NewServer(opts ...Option) *Server {
	s := &Server{
		maxPromptLength: 2000,
		editor:          pitch.NewEditor(drill.New()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("mcp")
	}
	s.mcp = server.NewMCPServer("pepai", Version, server.WithToolCapabilities(true))
	s.registerDiagramTools()
	s.registerDrillTools()
	return s
}

// Serve speaks MCP over r and w until ctx is done or r is exhausted.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info(ctx, "mcp server listening on stdio")
	return server.NewStdioServer(s.mcp).Listen(ctx, r, w)
}

// Drill returns a copy of the drill being edited.
func (s *Server) Drill() drill.Drill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor.Drill()
}

func (s *Server) registerDiagramTools() {
	s.mcp.AddTool(mcp.NewTool("get_drill",
		mcp.WithDescription("Return the drill being edited as JSON"),
	), s.handleGetDrill)

	s.mcp.AddTool(mcp.NewTool("new_drill",
		mcp.WithDescription("Start over from the blank drill template"),
	), s.handleNewDrill)

	s.mcp.AddTool(mcp.NewTool("set_drill",
		mcp.WithDescription("Replace the drill being edited. Loose drill JSON is normalized."),
		mcp.WithString("drill", mcp.Description("Drill JSON"), mcp.Required()),
	), s.handleSetDrill)

	s.mcp.AddTool(mcp.NewTool("add_marker",
		mcp.WithDescription("Place a player, cone, ball or goal. Coordinates run 0-100 across and down the pitch."),
		mcp.WithString("type", mcp.Description("Marker type"), mcp.Required(), mcp.Enum("player", "cone", "ball", "goal")),
		mcp.WithNumber("x", mcp.Description("X position, 0-100"), mcp.Required()),
		mcp.WithNumber("y", mcp.Description("Y position, 0-100"), mcp.Required()),
		mcp.WithString("label", mcp.Description("Label (optional; players are numbered automatically)")),
	), s.handleAddMarker)

	s.mcp.AddTool(mcp.NewTool("add_arrow",
		mcp.WithDescription("Draw a pass, dribble or run between two points"),
		mcp.WithString("type", mcp.Description("Arrow type"), mcp.Required(), mcp.Enum("pass", "dribble", "run")),
		mcp.WithNumber("start_x", mcp.Required()),
		mcp.WithNumber("start_y", mcp.Required()),
		mcp.WithNumber("end_x", mcp.Required()),
		mcp.WithNumber("end_y", mcp.Required()),
	), s.handleAddArrow)

	s.mcp.AddTool(mcp.NewTool("delete_element",
		mcp.WithDescription("Remove a marker or arrow by id"),
		mcp.WithString("id", mcp.Description("Element id"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteElement)

	s.mcp.AddTool(mcp.NewTool("clear_pitch",
		mcp.WithDescription("Remove every marker and arrow"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleClearPitch)

	s.mcp.AddTool(mcp.NewTool("replay_gestures",
		mcp.WithDescription("Apply recorded editor gestures in order: [{kind: tool|down|move|up|delete|clear, x, y, tool, id}]"),
		mcp.WithString("gestures", mcp.Description("JSON array of gestures"), mcp.Required()),
	), s.handleReplayGestures)
}

func (s *Server) registerDrillTools() {
	s.mcp.AddTool(mcp.NewTool("generate_drill",
		mcp.WithDescription("Generate a drill from a coaching request and make it the drill being edited"),
		mcp.WithString("prompt", mcp.Description("What the session should work on"), mcp.Required()),
	), s.handleGenerateDrill)

	s.mcp.AddTool(mcp.NewTool("decode_share_link",
		mcp.WithDescription("Open a shared session from a link, an id or a legacy data payload"),
		mcp.WithString("link", mcp.Description("Share URL, ?id= value or ?data= payload"), mcp.Required()),
	), s.handleDecodeShareLink)
}

func (s *Server) handleGetDrill(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.drillResult("get_drill", s.Drill())
}

func (s *Server) handleNewDrill(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.editor = pitch.NewEditor(drill.New())
	d := s.editor.Drill()
	s.mu.Unlock()
	return s.drillResult("new_drill", d)
}

func (s *Server) handleSetDrill(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("drill")
	if err != nil {
		return s.toolError("set_drill", err), nil
	}
	d, err := drill.Normalize(raw, "")
	if err != nil {
		return s.toolError("set_drill", err), nil
	}
	s.mu.Lock()
	s.editor.Replace(d)
	d = s.editor.Drill()
	s.mu.Unlock()
	return s.drillResult("set_drill", d)
}

func (s *Server) handleAddMarker(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "add_marker"
	typ, err := req.RequireString("type")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	p, err := point(req, "x", "y")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	return s.edit(tool, func(e *pitch.Editor) error {
		_, err := e.AddMarker(drill.MarkerType(typ), p, req.GetString("label", ""))
		return err
	})
}

func (s *Server) handleAddArrow(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "add_arrow"
	typ, err := req.RequireString("type")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	start, err := point(req, "start_x", "start_y")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	end, err := point(req, "end_x", "end_y")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	return s.edit(tool, func(e *pitch.Editor) error {
		_, err := e.AddArrow(start, end, drill.ArrowType(typ))
		return err
	})
}

func (s *Server) handleDeleteElement(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return s.toolError("delete_element", err), nil
	}
	return s.edit("delete_element", func(e *pitch.Editor) error {
		if !e.Delete(id) {
			return fmt.Errorf("no element with id %q", id)
		}
		return nil
	})
}

func (s *Server) handleClearPitch(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.edit("clear_pitch", (*pitch.Editor).Clear)
}

func (s *Server) handleReplayGestures(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "replay_gestures"
	raw, err := req.RequireString("gestures")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	var gestures []pitch.Gesture
	if err := json.Unmarshal([]byte(raw), &gestures); err != nil {
		return s.toolError(tool, fmt.Errorf("gestures must be a JSON array: %w", err)), nil
	}

	s.mu.Lock()
	res, err := pitch.Replay(s.editor.Drill(), nil, gestures)
	if err == nil {
		s.editor.Replace(res.Drill)
	}
	s.mu.Unlock()
	if err != nil {
		return s.toolError(tool, err), nil
	}
	return s.jsonResult(tool, res)
}

func (s *Server) handleGenerateDrill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "generate_drill"
	if s.gen == nil || !s.gen.Configured() {
		return s.toolError(tool, generate.ErrNotConfigured), nil
	}
	raw, err := req.RequireString("prompt")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	prompt, err := generate.CleanPrompt(raw, s.maxPromptLength)
	if err != nil {
		return s.toolError(tool, err), nil
	}
	resp, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return s.toolError(tool, err), nil
	}

	s.mu.Lock()
	s.editor.Replace(resp.First())
	s.mu.Unlock()
	if resp.Kind == drill.KindMulti {
		return s.jsonResult(tool, map[string]any{"drills": resp.Drills})
	}
	return s.drillResult(tool, resp.First())
}

func (s *Server) handleDecodeShareLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	const tool = "decode_share_link"
	link, err := req.RequireString("link")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	id, data := share.ParseLink(link)
	var sess session.Session
	switch {
	case id != "":
		if s.shares == nil {
			return s.toolError(tool, errors.New("id links need a store")), nil
		}
		shared, err := s.shares.GetShared(ctx, id)
		if err != nil {
			return s.toolError(tool, err), nil
		}
		sess = shared.Session
	default:
		sess, err = share.Decompress(data)
		if err != nil {
			return s.toolError(tool, err), nil
		}
	}
	metrics.RecordShareLink("mcp", "open")
	return s.jsonResult(tool, sess)
}

// edit applies fn to the editor and returns the resulting drill.
func (s *Server) edit(tool string, fn func(*pitch.Editor) error) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	err := fn(s.editor)
	d := s.editor.Drill()
	s.mu.Unlock()
	if err != nil {
		return s.toolError(tool, err), nil
	}
	return s.drillResult(tool, d)
}

func (s *Server) drillResult(tool string, d drill.Drill) (*mcp.CallToolResult, error) {
	return s.jsonResult(tool, d)
}

func (s *Server) jsonResult(tool string, v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.toolError(tool, err), nil
	}
	metrics.RecordMCPToolCall(tool, "ok")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	metrics.RecordMCPToolCall(tool, "error")
	s.logger.Debug(context.Background(), "tool failed", logger.String("tool", tool), logger.Error(err))
	return mcp.NewToolResultError(err.Error())
}

func point(req mcp.CallToolRequest, xKey, yKey string) (drill.Point, error) {
	x, err := req.RequireFloat(xKey)
	if err != nil {
		return drill.Point{}, err
	}
	y, err := req.RequireFloat(yKey)
	if err != nil {
		return drill.Point{}, err
	}
	return drill.Point{X: x, Y: y}, nil
}

func boolPtr(b bool) *bool { return &b }
