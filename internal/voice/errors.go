package voice

import "errors"

var (
	// ErrUnknownTool is reported back to the model for calls it should not make.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrBadArgs means a tool call was missing or mistyped an argument.
	ErrBadArgs = errors.New("bad tool arguments")
	// errClosed ends a session normally.
	errClosed = errors.New("voice session closed")
)
