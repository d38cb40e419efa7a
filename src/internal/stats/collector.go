package stats

import (
	"sync/atomic"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
	"github.com/maksimkurb/keen-relay/src/internal/tunnel"
)

// Collector is the process-wide traffic and DNS counter. It observes the
// tunnel server, its sockets, the DNS engine and the TUN pump.
type Collector struct {
	TunnelsOpened atomic.Int64
	TunnelsClosed atomic.Int64
	BytesUp       atomic.Int64 // client to remote
	BytesDown     atomic.Int64 // remote to client
	SocketErrors  atomic.Int64

	DNSQueries      atomic.Int64
	FakeAnswers     atomic.Int64
	RealAnswers     atomic.Int64
	PendingExpired  atomic.Int64
	FakeReleased    atomic.Int64
	PoolExhausted   atomic.Int64
	UnmatchedAnswer atomic.Int64
	PacketsDropped  atomic.Int64

	hub     *Hub
	started time.Time
	now     func() time.Time
}

var (
	_ tunnel.Observer   = (*Collector)(nil)
	_ socket.Observer   = (*Collector)(nil)
	_ dnsproxy.Observer = (*Collector)(nil)
)

// NewCollector creates a collector. Events are published to hub when it is
// not nil.
func NewCollector(hub *Hub) *Collector {
	return &Collector{hub: hub, started: time.Now(), now: time.Now}
}

// TunnelEvent is the payload published for tunnel events.
type TunnelEvent struct {
	ID        uint64 `json:"id"`
	Target    string `json:"target,omitempty"`
	Adapter   string `json:"adapter,omitempty"`
	BytesUp   uint64 `json:"bytes_up,omitempty"`
	BytesDown uint64 `json:"bytes_down,omitempty"`
}

// DNSEvent is the payload published for DNS events.
type DNSEvent struct {
	Domain  string `json:"domain,omitempty"`
	Address string `json:"address,omitempty"`
	Result  string `json:"result,omitempty"`
}

// OnTunnelEvent implements tunnel.Observer.
func (c *Collector) OnTunnelEvent(e tunnel.Event) {
	switch e.Kind {
	case tunnel.EventOpened:
		c.TunnelsOpened.Add(1)
	case tunnel.EventClosed:
		c.TunnelsClosed.Add(1)
	case tunnel.EventProxyRead:
		c.BytesUp.Add(int64(e.Bytes))
		return
	case tunnel.EventAdapterRead:
		c.BytesDown.Add(int64(e.Bytes))
		return
	case tunnel.EventConnectedToRemote:
	default:
		return
	}

	c.publish("tunnel", e.Kind.String(), TunnelEvent{
		ID:        e.TunnelID,
		Target:    e.Target,
		Adapter:   e.Adapter,
		BytesUp:   e.BytesUp,
		BytesDown: e.BytesDown,
	})
}

// OnSocketEvent implements socket.Observer.
func (c *Collector) OnSocketEvent(e socket.Event) {
	if e.Kind == socket.EventError {
		c.SocketErrors.Add(1)
	}
}

// OnDNSEvent implements dnsproxy.Observer.
func (c *Collector) OnDNSEvent(e dnsproxy.Event) {
	switch e.Kind {
	case dnsproxy.EventQuery:
		c.DNSQueries.Add(1)
	case dnsproxy.EventFakeAnswer:
		c.FakeAnswers.Add(1)
	case dnsproxy.EventRealAnswer:
		c.RealAnswers.Add(1)
	case dnsproxy.EventPendingExpired:
		c.PendingExpired.Add(1)
	case dnsproxy.EventFakeReleased:
		c.FakeReleased.Add(1)
	case dnsproxy.EventPoolExhausted:
		c.PoolExhausted.Add(1)
	case dnsproxy.EventUnmatchedResponse:
		c.UnmatchedAnswer.Add(1)
		return
	}

	payload := DNSEvent{Domain: e.Domain}
	if e.Address != 0 {
		payload.Address = e.Address.String()
	}
	if e.Result != dnsproxy.MatchUnknown {
		payload.Result = e.Result.String()
	}
	c.publish("dns", e.Kind.String(), payload)
}

// OnPacketDropped counts packets the TUN pump could not deliver.
func (c *Collector) OnPacketDropped() {
	c.PacketsDropped.Add(1)
}

func (c *Collector) publish(source, kind string, data interface{}) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(Message{Source: source, Kind: kind, Time: c.now(), Data: data})
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Uptime        string `json:"uptime"`
	TunnelsOpened int64  `json:"tunnels_opened"`
	TunnelsClosed int64  `json:"tunnels_closed"`
	TunnelsActive int64  `json:"tunnels_active"`
	BytesUp       int64  `json:"bytes_up"`
	BytesDown     int64  `json:"bytes_down"`
	SocketErrors  int64  `json:"socket_errors"`

	DNSQueries      int64 `json:"dns_queries"`
	FakeAnswers     int64 `json:"dns_fake_answers"`
	RealAnswers     int64 `json:"dns_real_answers"`
	PendingExpired  int64 `json:"dns_pending_expired"`
	FakeReleased    int64 `json:"dns_fake_released"`
	PoolExhausted   int64 `json:"dns_pool_exhausted"`
	UnmatchedAnswer int64 `json:"dns_unmatched_answers"`
	PacketsDropped  int64 `json:"tun_packets_dropped"`
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	opened := c.TunnelsOpened.Load()
	closed := c.TunnelsClosed.Load()

	return Snapshot{
		Uptime:          c.now().Sub(c.started).Truncate(time.Second).String(),
		TunnelsOpened:   opened,
		TunnelsClosed:   closed,
		TunnelsActive:   opened - closed,
		BytesUp:         c.BytesUp.Load(),
		BytesDown:       c.BytesDown.Load(),
		SocketErrors:    c.SocketErrors.Load(),
		DNSQueries:      c.DNSQueries.Load(),
		FakeAnswers:     c.FakeAnswers.Load(),
		RealAnswers:     c.RealAnswers.Load(),
		PendingExpired:  c.PendingExpired.Load(),
		FakeReleased:    c.FakeReleased.Load(),
		PoolExhausted:   c.PoolExhausted.Load(),
		UnmatchedAnswer: c.UnmatchedAnswer.Load(),
		PacketsDropped:  c.PacketsDropped.Load(),
	}
}
