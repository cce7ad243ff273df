package generate

import "time"

// EventKind discriminates Event.
type EventKind int

const (
	// Progress carries the text accumulated so far in the current attempt.
	Progress EventKind = iota + 1
	// Retrying means the provider was overwhelmed and another attempt follows after Delay.
	Retrying
	// Done carries the complete text. It is terminal.
	Done
	// Failed carries Err. It is terminal.
	Failed
)

func (k EventKind) String() string {
	switch k {
	case Progress:
		return "progress"
	case Retrying:
		return "retrying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Event is one step of a streamed generation.
type Event struct {
	Kind    EventKind
	Text    string
	Attempt int
	Delay   time.Duration
	Err     error
}

// Terminal reports whether no more events follow.
func (e Event) Terminal() bool { return e.Kind == Done || e.Kind == Failed }
