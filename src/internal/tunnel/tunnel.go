package tunnel

import (
	"fmt"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

// AdapterSelector picks the adapter factory for a connect session.
type AdapterSelector interface {
	SelectAdapterFactory(session *socket.ConnectSession) socket.AdapterFactory
}

// HostResolver resolves hostnames to IPv4 addresses. done may be called on
// any goroutine, with "" when the host could not be resolved.
type HostResolver interface {
	Resolve(host string, done func(ip string))
}

// FakeIPLookup maps fake addresses back to the DNS sessions that handed
// them out. LookupFakeIP must not be called from the DNS executor.
type FakeIPLookup interface {
	IsFakeIP(addr packet.Address) bool
	LookupFakeIP(addr packet.Address) *dnsproxy.Session
}

// environment is what a tunnel borrows from its server.
type environment struct {
	exec            queue.Executor
	selector        AdapterSelector
	resolver        HostResolver
	fakeIP          FakeIPLookup
	forwardInterval time.Duration
	observer        Observer
	now             func() time.Time
	onClosed        func(t *Tunnel)
}

// Tunnel relays data between a client-facing proxy socket and the adapter
// connected on its behalf. All methods run on the server executor.
type Tunnel struct {
	id  uint64
	env *environment

	proxy       socket.ProxySocket
	adapter     socket.Adapter
	adapterName string

	status         Status
	proxyReady     bool
	adapterReady   bool
	readySignal    int
	cancelled      bool
	stopForwarding bool
	notified       bool
	readTask       queue.Task

	openedAt  time.Time
	bytesUp   uint64
	bytesDown uint64
}

func newTunnel(id uint64, proxy socket.ProxySocket, env *environment) *Tunnel {
	t := &Tunnel{id: id, env: env, proxy: proxy, openedAt: env.now()}
	proxy.SetDelegate(t)
	return t
}

var _ socket.Delegate = (*Tunnel)(nil)

// ID returns the server-assigned identifier.
func (t *Tunnel) ID() uint64 { return t.id }

// Status returns the tunnel state.
func (t *Tunnel) Status() Status { return t.status }

// IsCancelled reports whether Close or ForceClose was called or a socket
// disconnected.
func (t *Tunnel) IsCancelled() bool { return t.cancelled }

// IsClosed reports whether both sockets are disconnected.
func (t *Tunnel) IsClosed() bool {
	return t.proxy.IsDisconnected() && (t.adapter == nil || t.adapter.IsDisconnected())
}

// Session returns the connect session, nil before the request is read.
func (t *Tunnel) Session() *socket.ConnectSession {
	return t.proxy.Session()
}

func (t *Tunnel) String() string {
	if t.adapter != nil {
		return fmt.Sprintf("<Tunnel #%d proxy: %s adapter: %s>", t.id, t.proxy, t.adapter)
	}
	return fmt.Sprintf("<Tunnel #%d proxy: %s>", t.id, t.proxy)
}

// Open starts reading the client's request.
func (t *Tunnel) Open() {
	if t.cancelled {
		return
	}
	t.status = StatusReadingRequest
	t.signal(Event{Kind: EventOpened})
	t.proxy.Open()
}

// Close disconnects both sockets gracefully.
func (t *Tunnel) Close() {
	t.signal(Event{Kind: EventCloseCalled})
	if t.cancelled {
		return
	}
	t.cancelled = true
	t.status = StatusClosing

	if !t.proxy.IsDisconnected() {
		t.proxy.Disconnect(nil)
	}
	if t.adapter != nil && !t.adapter.IsDisconnected() {
		t.adapter.Disconnect(nil)
	}
	t.checkStatus()
}

// ForceClose tears both sockets down right away. No data is forwarded
// after it returns.
func (t *Tunnel) ForceClose() {
	t.signal(Event{Kind: EventForceCloseCalled})
	if t.cancelled {
		return
	}
	t.cancelled = true
	t.status = StatusClosing
	t.stopForwarding = true
	if t.readTask != nil {
		t.readTask.Cancel()
	}

	if !t.proxy.IsDisconnected() {
		t.proxy.ForceDisconnect(nil)
	}
	if t.adapter != nil && !t.adapter.IsDisconnected() {
		t.adapter.ForceDisconnect(nil)
	}
	t.checkStatus()
}

// DidReceiveSession implements socket.Delegate.
func (t *Tunnel) DidReceiveSession(session *socket.ConnectSession, from socket.ProxySocket) {
	if t.cancelled || from != t.proxy {
		return
	}
	t.status = StatusWaitingToBeReady
	t.signal(Event{Kind: EventReceivedRequest})

	if t.restoreFakeIP(session) {
		t.openAdapter(session)
		return
	}
	if session.IsIP() {
		session.IPAddress = session.Host
		t.openAdapter(session)
		return
	}

	t.env.resolver.Resolve(session.Host, func(ip string) {
		t.env.exec.Async(func() {
			if ip == "" {
				log.Debugf("[tunnel #%d] Failed to resolve %s", t.id, session.Host)
			}
			session.IPAddress = ip
			t.openAdapter(session)
		})
	})
}

// restoreFakeIP swaps a fake destination for the domain it was handed out
// for. It reports true when the session needs no further resolution.
func (t *Tunnel) restoreFakeIP(session *socket.ConnectSession) bool {
	if t.env.fakeIP == nil {
		return false
	}
	addr, ok := session.HostAddress()
	if !ok || !t.env.fakeIP.IsFakeIP(addr) {
		return false
	}

	session.FakeIP = addr
	dnsSession := t.env.fakeIP.LookupFakeIP(addr)
	if dnsSession == nil {
		// Connecting to the fake address itself would loop back to us.
		log.Warnf("[tunnel #%d] No DNS mapping for fake address %s", t.id, addr)
		session.IPAddress = ""
		return true
	}

	session.Host = dnsSession.Domain()
	if dnsSession.MatchedRule != nil {
		session.MatchedRule = dnsSession.MatchedRule
	}
	log.Debugf("[tunnel #%d] Restored %s from fake address %s", t.id, session.Host, addr)
	if dnsSession.HasRealIP() {
		session.IPAddress = dnsSession.RealIP.String()
		return true
	}
	return false
}

func (t *Tunnel) openAdapter(session *socket.ConnectSession) {
	if t.cancelled {
		return
	}
	factory := t.env.selector.SelectAdapterFactory(session)
	t.adapterName = factory.Name()
	t.adapter = factory.NewAdapter(session)
	t.adapter.SetDelegate(t)
	t.adapter.Open(session)
}

// DidConnectAdapter implements socket.Delegate.
func (t *Tunnel) DidConnectAdapter(adapter socket.Adapter) {
	if t.cancelled || adapter != t.adapter {
		return
	}
	t.signal(Event{Kind: EventConnectedToRemote})
}

// DidBecomeReadyToForward implements socket.Delegate. Each side counts
// once; forwarding starts when both are ready.
func (t *Tunnel) DidBecomeReadyToForward(s socket.Socket) {
	if t.cancelled {
		return
	}

	switch {
	case t.isProxy(s):
		if !t.proxyReady {
			t.proxyReady = true
			t.readySignal++
		}
	case t.isAdapter(s):
		if !t.adapterReady {
			t.adapterReady = true
			t.readySignal++
		}
	default:
		return
	}
	t.signal(Event{Kind: EventReceivedReadySignal, Ready: t.readySignal})

	if t.readySignal == 2 && t.status != StatusForwarding {
		t.status = StatusForwarding
		t.proxy.ReadData()
		t.adapter.ReadData()
	}
	// Every signal reaches the proxy so it can answer the current adapter.
	// Proxy sockets respond once and ignore repeats.
	if t.adapter != nil {
		t.proxy.RespondTo(t.adapter)
	}
}

// DidDisconnect implements socket.Delegate.
func (t *Tunnel) DidDisconnect(s socket.Socket) {
	if !t.isProxy(s) && !t.isAdapter(s) {
		return
	}
	if !t.cancelled {
		t.stopForwarding = true
		t.Close()
	}
	t.checkStatus()
}

// DidRead implements socket.Delegate.
func (t *Tunnel) DidRead(data []byte, from socket.Socket) {
	switch {
	case t.isProxy(from):
		t.signal(Event{Kind: EventProxyRead, Bytes: len(data)})
		if t.cancelled || t.adapter == nil {
			return
		}
		t.bytesUp += uint64(len(data))
		t.adapter.Write(data)
	case t.isAdapter(from):
		t.signal(Event{Kind: EventAdapterRead, Bytes: len(data)})
		if t.cancelled {
			return
		}
		t.bytesDown += uint64(len(data))
		t.proxy.Write(data)
	}
}

// DidWrite implements socket.Delegate. The adapter is read again after a
// short pause once the client took the data; the client is read again
// right away once the adapter did.
func (t *Tunnel) DidWrite(data []byte, by socket.Socket) {
	switch {
	case t.isProxy(by):
		t.signal(Event{Kind: EventProxyWrote, Bytes: len(data)})
		if t.cancelled {
			return
		}
		t.readTask = t.env.exec.After(t.env.forwardInterval, func() {
			t.readTask = nil
			if t.stopForwarding || t.cancelled || t.adapter == nil {
				return
			}
			t.adapter.ReadData()
		})
	case t.isAdapter(by):
		t.signal(Event{Kind: EventAdapterWrote, Bytes: len(data)})
		if t.cancelled {
			return
		}
		t.proxy.ReadData()
	}
}

// UpdateAdapter implements socket.Delegate.
func (t *Tunnel) UpdateAdapter(newAdapter socket.Adapter) {
	if t.cancelled {
		return
	}
	t.signal(Event{Kind: EventUpdatingAdapter, Adapter: newAdapter.String()})
	t.adapter = newAdapter
	t.adapter.SetDelegate(t)
}

func (t *Tunnel) checkStatus() {
	if t.notified || !t.IsClosed() {
		return
	}
	t.notified = true
	t.status = StatusClosed
	t.signal(Event{Kind: EventClosed, BytesUp: t.bytesUp, BytesDown: t.bytesDown})
	if t.env.onClosed != nil {
		t.env.onClosed(t)
	}
}

func (t *Tunnel) isProxy(s socket.Socket) bool {
	return s != nil && s == socket.Socket(t.proxy)
}

func (t *Tunnel) isAdapter(s socket.Socket) bool {
	return s != nil && t.adapter != nil && s == socket.Socket(t.adapter)
}

func (t *Tunnel) signal(e Event) {
	if t.env.observer == nil {
		return
	}
	e.TunnelID = t.id
	if e.Adapter == "" {
		e.Adapter = t.adapterName
	}
	if session := t.proxy.Session(); session != nil {
		e.Target = session.HostPort()
	}
	t.env.observer.OnTunnelEvent(e)
}

// Info is a point-in-time view of a tunnel.
type Info struct {
	ID        uint64    `json:"id"`
	Status    string    `json:"status"`
	Client    string    `json:"client"`
	Target    string    `json:"target,omitempty"`
	Address   string    `json:"address,omitempty"`
	FakeIP    string    `json:"fake_ip,omitempty"`
	Adapter   string    `json:"adapter,omitempty"`
	Rule      string    `json:"rule,omitempty"`
	OpenedAt  time.Time `json:"opened_at"`
	BytesUp   uint64    `json:"bytes_up"`
	BytesDown uint64    `json:"bytes_down"`
}

func (t *Tunnel) info() Info {
	i := Info{
		ID:        t.id,
		Status:    t.status.String(),
		Client:    t.proxy.String(),
		Adapter:   t.adapterName,
		OpenedAt:  t.openedAt,
		BytesUp:   t.bytesUp,
		BytesDown: t.bytesDown,
	}
	if session := t.proxy.Session(); session != nil {
		i.Target = session.HostPort()
		i.Address = session.IPAddress
		if session.IsFakeIPRestored() {
			i.FakeIP = session.FakeIP.String()
		}
		if session.MatchedRule != nil {
			i.Rule = session.MatchedRule.String()
		}
	}
	return i
}
