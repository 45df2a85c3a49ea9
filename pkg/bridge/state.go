package bridge

// State is the lifecycle phase of a bridge session.
type State string

const (
	// StateConnecting covers AI session setup, before any relay runs.
	StateConnecting State = "connecting"
	// StateActive means both relay tasks are running.
	StateActive State = "active"
	// StateClosing means teardown has begun; audio sends are rejected.
	StateClosing State = "closing"
	// StateClosed is terminal: both transports released.
	StateClosed State = "closed"
)

// validTransitions enumerates every allowed state change. Anything else is a
// programming error and is refused.
var validTransitions = map[State]map[State]struct{}{
	StateConnecting: {StateActive: {}, StateClosing: {}, StateClosed: {}},
	StateActive:     {StateClosing: {}},
	StateClosing:    {StateClosed: {}},
	StateClosed:     {},
}

func canTransition(from, to State) bool {
	_, ok := validTransitions[from][to]
	return ok
}
