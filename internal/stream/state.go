package stream

// State is the lifecycle position of a client.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of a client for ops endpoints.
type Status struct {
	Channel   Channel  `json:"channel"`
	URL       string   `json:"url"`
	Topics    []string `json:"topics"`
	State     State    `json:"state"`
	Attempts  int      `json:"reconnect_attempts"`
	Exhausted bool     `json:"exhausted"`
	LastError string   `json:"last_error,omitempty"`
}
