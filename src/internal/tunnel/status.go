package tunnel

// Status is the lifecycle state of a Tunnel. It only moves forward.
type Status uint8

const (
	StatusInvalid Status = iota
	StatusReadingRequest
	StatusWaitingToBeReady
	StatusForwarding
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusReadingRequest:
		return "reading request"
	case StatusWaitingToBeReady:
		return "waiting to be ready"
	case StatusForwarding:
		return "forwarding"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	default:
		return "invalid"
	}
}
