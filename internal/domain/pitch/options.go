package pitch

// Option configures an Editor.
type Option func(*Editor)

// WithReadOnly makes the editor ignore all gestures. Shared sessions are
// shown this way.
func WithReadOnly(ro bool) Option {
	return func(e *Editor) {
		e.readOnly = ro
	}
}

// WithTool sets the initial tool. Unknown tools are ignored.
func WithTool(t Tool) Option {
	return func(e *Editor) {
		if t.Valid() {
			e.tool = t
			e.resetGesture()
		}
	}
}
