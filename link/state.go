package link

// State is the connection lifecycle state of a Session.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpened
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpened:
		return "opened"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// transitions lists the allowed state changes.
var transitions = map[State][]State{
	StateClosed:  {StateOpening},
	StateOpening: {StateOpened, StateError},
	StateOpened:  {StateClosed, StateError},
	StateError:   {StateClosed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Status is a snapshot of the session.
type Status struct {
	State State
	// Err is non-empty exactly when State is StateError, or while Opening
	// after a failed attempt.
	Err string
	// Warning carries non-fatal problems of an open link.
	Warning string
	Device  *Device
	Reading bool
}
