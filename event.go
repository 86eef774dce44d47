package acd

// Event identifies one of the three lifecycle notifications a session
// delivers to its callback. Numeric values are part of the API and must
// stay stable.
type Event int

const (
	EventBind     Event = 0
	EventConflict Event = 1
	EventStop     Event = 2
)

func (e Event) String() string {
	switch e {
	case EventBind:
		return "BIND"
	case EventConflict:
		return "CONFLICT"
	case EventStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Callback receives lifecycle events from a Session. userdata is whatever
// was passed to SetCallback, returned verbatim.
type Callback func(s *Session, event Event, userdata any)
