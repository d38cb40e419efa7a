package socket

// Status is the connection state of a socket. Transitions only move forward.
type Status uint8

const (
	// StatusInvalid means the socket is created but never connected.
	StatusInvalid Status = iota
	StatusConnecting
	StatusEstablished
	StatusDisconnecting
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusInvalid:
		return "invalid"
	case StatusConnecting:
		return "connecting"
	case StatusEstablished:
		return "established"
	case StatusDisconnecting:
		return "disconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
