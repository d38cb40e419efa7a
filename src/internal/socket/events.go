package socket

// EventKind identifies a socket event.
type EventKind uint8

const (
	EventOpened EventKind = iota
	EventReceivedSession
	EventConnected
	EventReadyForForward
	EventRead
	EventWrote
	EventDisconnectCalled
	EventForceDisconnectCalled
	EventDisconnected
	EventError
)

var eventNames = [...]string{
	EventOpened:                "opened",
	EventReceivedSession:       "received-session",
	EventConnected:             "connected",
	EventReadyForForward:       "ready-for-forward",
	EventRead:                  "read",
	EventWrote:                 "wrote",
	EventDisconnectCalled:      "disconnect-called",
	EventForceDisconnectCalled: "force-disconnect-called",
	EventDisconnected:          "disconnected",
	EventError:                 "error",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event describes something that happened on a socket.
type Event struct {
	Kind   EventKind
	Side   Side
	Socket string
	Bytes  int
	Err    error
}

// Observer receives socket events on the tunnel executor.
type Observer interface {
	OnSocketEvent(e Event)
}
