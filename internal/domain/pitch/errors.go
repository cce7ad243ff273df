package pitch

import "errors"

var (
	// ErrUnknownTool is returned for a tool, marker or arrow type the editor does not know.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrReadOnly is returned when a read-only editor is asked to change.
	ErrReadOnly = errors.New("editor is read-only")
	// ErrUnknownGesture is returned by Replay for an unrecognised gesture kind.
	ErrUnknownGesture = errors.New("unknown gesture")
)
