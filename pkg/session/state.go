package session

// State is the session state.
type State uint8

const (
	// StateConnect is the initial state: key exchange and negotiation.
	StateConnect State = iota

	// StateOpen means a file has been opened and no data received yet.
	StateOpen

	// StateData means at least one chunk has been written.
	StateData

	// StateClose is terminal.
	StateClose
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnect:
		return "CONNECT"
	case StateOpen:
		return "OPEN"
	case StateData:
		return "DATA"
	case StateClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}
