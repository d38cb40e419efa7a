package tunnel

// EventKind identifies a tunnel event.
type EventKind uint8

const (
	EventOpened EventKind = iota
	EventReceivedRequest
	EventReceivedReadySignal
	EventConnectedToRemote
	EventUpdatingAdapter
	EventProxyRead
	EventAdapterRead
	EventProxyWrote
	EventAdapterWrote
	EventCloseCalled
	EventForceCloseCalled
	EventClosed
)

var eventKindNames = map[EventKind]string{
	EventOpened:              "opened",
	EventReceivedRequest:     "received_request",
	EventReceivedReadySignal: "received_ready_signal",
	EventConnectedToRemote:   "connected_to_remote",
	EventUpdatingAdapter:     "updating_adapter",
	EventProxyRead:           "proxy_read",
	EventAdapterRead:         "adapter_read",
	EventProxyWrote:          "proxy_wrote",
	EventAdapterWrote:        "adapter_wrote",
	EventCloseCalled:         "close_called",
	EventForceCloseCalled:    "force_close_called",
	EventClosed:              "closed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes a state change of a tunnel.
type Event struct {
	Kind     EventKind
	TunnelID uint64
	// Target is the requested host:port, empty before the request is read.
	Target  string
	Adapter string
	Bytes   int
	// Ready is the readiness count after a ready signal.
	Ready int
	// BytesUp and BytesDown are totals, set on EventClosed.
	BytesUp   uint64
	BytesDown uint64
}

// Observer receives tunnel events on the tunnel executor. Implementations
// must not block.
type Observer interface {
	OnTunnelEvent(e Event)
}
