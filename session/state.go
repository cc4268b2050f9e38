package session

type State int

const (
	Disconnected State = iota
	Connecting
	OptionsNegotiated
	Streaming
	Terminating
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case OptionsNegotiated:
		return "options_negotiated"
	case Streaming:
		return "streaming"
	case Terminating:
		return "terminating"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
