package socket

import "fmt"

// proxyBase carries what every client-facing socket shares. A proxy socket
// wraps an accepted connection, so it starts out established.
type proxyBase struct {
	self     ProxySocket
	name     string
	raw      RawSocket
	delegate Delegate
	observer Observer

	status    Status
	cancelled bool
	session   *ConnectSession
}

func (b *proxyBase) init(self ProxySocket, name string, raw RawSocket, rawDelegate RawDelegate, observer Observer) {
	b.self = self
	b.name = name
	b.raw = raw
	b.observer = observer
	b.status = StatusEstablished
	raw.SetDelegate(rawDelegate)
}

// Side implements Socket.
func (b *proxyBase) Side() Side { return SideProxy }

// Status implements Socket.
func (b *proxyBase) Status() Status { return b.status }

// IsDisconnected implements Socket.
func (b *proxyBase) IsDisconnected() bool { return isDisconnected(b.status) }

// IsCancelled reports whether a disconnect was requested.
func (b *proxyBase) IsCancelled() bool { return b.cancelled }

// Session implements Socket. It is nil until the request is parsed.
func (b *proxyBase) Session() *ConnectSession { return b.session }

// SetDelegate implements Socket.
func (b *proxyBase) SetDelegate(d Delegate) { b.delegate = d }

// Raw returns the underlying transport.
func (b *proxyBase) Raw() RawSocket { return b.raw }

// ReadData implements Socket.
func (b *proxyBase) ReadData() {
	if b.cancelled {
		return
	}
	b.raw.ReadData()
}

// Write implements Socket.
func (b *proxyBase) Write(data []byte) {
	if b.cancelled {
		return
	}
	b.raw.Write(data)
}

// Disconnect implements Socket.
func (b *proxyBase) Disconnect(err error) {
	if b.cancelled {
		return
	}
	b.status = StatusDisconnecting
	b.cancelled = true
	if b.session != nil {
		b.session.Disconnected(err, SideProxy)
	}
	b.raw.Disconnect()
	b.signal(Event{Kind: EventDisconnectCalled, Err: err})
}

// ForceDisconnect implements Socket.
func (b *proxyBase) ForceDisconnect(err error) {
	if b.cancelled {
		return
	}
	b.status = StatusDisconnecting
	b.cancelled = true
	if b.session != nil {
		b.session.Disconnected(err, SideProxy)
	}
	b.raw.ForceDisconnect()
	b.signal(Event{Kind: EventForceDisconnectCalled, Err: err})
}

func (b *proxyBase) String() string {
	if b.session != nil {
		return fmt.Sprintf("<%s %s>", b.name, b.session)
	}
	return fmt.Sprintf("<%s>", b.name)
}

// open reports whether the socket may start reading.
func (b *proxyBase) open() bool {
	if b.cancelled {
		return false
	}
	b.signal(Event{Kind: EventOpened})
	return true
}

// receivedSession hands the parsed destination to the tunnel.
func (b *proxyBase) receivedSession(session *ConnectSession) {
	b.session = session
	b.signal(Event{Kind: EventReceivedSession})
	if b.delegate != nil {
		b.delegate.DidReceiveSession(session, b.self)
	}
}

func (b *proxyBase) readyForForward() {
	b.signal(Event{Kind: EventReadyForForward})
	if b.delegate != nil {
		b.delegate.DidBecomeReadyToForward(b.self)
	}
}

func (b *proxyBase) forwardRead(data []byte) {
	b.signal(Event{Kind: EventRead, Bytes: len(data)})
	if b.delegate != nil {
		b.delegate.DidRead(data, b.self)
	}
}

func (b *proxyBase) forwardWrite(data []byte) {
	b.signal(Event{Kind: EventWrote, Bytes: len(data)})
	if b.delegate != nil {
		b.delegate.DidWrite(data, b.self)
	}
}

// fail reports a protocol error and drops the client.
func (b *proxyBase) fail(err error) {
	b.signal(Event{Kind: EventError, Err: err})
	b.Disconnect(err)
}

// DidConnect implements RawDelegate. Accepted sockets never connect.
func (b *proxyBase) DidConnect(RawSocket) {}

// DidDisconnect implements RawDelegate.
func (b *proxyBase) DidDisconnect(RawSocket) {
	b.status = StatusClosed
	b.cancelled = true
	b.signal(Event{Kind: EventDisconnected})
	d := b.delegate
	b.delegate = nil
	if d != nil {
		d.DidDisconnect(b.self)
	}
}

func (b *proxyBase) signal(e Event) {
	if b.observer == nil {
		return
	}
	e.Side = SideProxy
	e.Socket = b.self.String()
	b.observer.OnSocketEvent(e)
}
