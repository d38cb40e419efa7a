package dnsproxy

import "github.com/maksimkurb/keen-relay/src/internal/packet"

// EventKind identifies what happened to a DNS session.
type EventKind uint8

const (
	// EventQuery fires once a query was accepted and parsed.
	EventQuery EventKind = iota
	// EventFakeAnswer fires when a synthesized answer is sent.
	EventFakeAnswer
	// EventRealAnswer fires when an upstream answer is relayed.
	EventRealAnswer
	// EventPendingExpired fires when a forwarded query got no answer in time.
	EventPendingExpired
	// EventFakeReleased fires when a fake address returns to the pool.
	EventFakeReleased
	// EventPoolExhausted fires when a fake match had to fall back to real.
	EventPoolExhausted
	// EventUnmatchedResponse fires for upstream answers with no pending query.
	EventUnmatchedResponse
	// EventAnswerDropped fires when an answer is too large to fit a packet.
	EventAnswerDropped
)

var eventKindNames = map[EventKind]string{
	EventQuery:             "query",
	EventFakeAnswer:        "fake_answer",
	EventRealAnswer:        "real_answer",
	EventPendingExpired:    "pending_expired",
	EventFakeReleased:      "fake_released",
	EventPoolExhausted:     "pool_exhausted",
	EventUnmatchedResponse: "unmatched_response",
	EventAnswerDropped:     "answer_dropped",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event describes a state change of the DNS engine.
type Event struct {
	Kind          EventKind
	TransactionID uint16
	Domain        string
	Address       packet.Address
	Result        MatchResult
}

// Observer receives engine events on the engine's executor. Implementations
// must not block.
type Observer interface {
	OnDNSEvent(e Event)
}
