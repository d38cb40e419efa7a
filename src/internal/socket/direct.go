package socket

// DirectAdapter connects straight to the session's resolved address.
type DirectAdapter struct {
	adapterBase
}

// NewDirectAdapter creates an adapter over an unconnected raw socket.
func NewDirectAdapter(raw RawSocket, observer Observer) *DirectAdapter {
	a := &DirectAdapter{}
	a.init(a, "direct", raw, a, observer)
	return a
}

// Open implements Adapter.
func (a *DirectAdapter) Open(session *ConnectSession) {
	if !a.open(session) {
		return
	}
	if err := a.raw.Connect(session.IPAddress, session.Port, nil); err != nil {
		a.signal(Event{Kind: EventError, Err: err})
		a.Disconnect(err)
	}
}

// DidConnect implements RawDelegate.
func (a *DirectAdapter) DidConnect(raw RawSocket) {
	a.adapterBase.DidConnect(raw)
	if a.cancelled {
		return
	}
	a.readyForForward()
}

// DidRead implements RawDelegate.
func (a *DirectAdapter) DidRead(data []byte, _ RawSocket) {
	a.signal(Event{Kind: EventRead, Bytes: len(data)})
	if a.delegate != nil {
		a.delegate.DidRead(data, a)
	}
}

// DidWrite implements RawDelegate.
func (a *DirectAdapter) DidWrite(data []byte, _ RawSocket) {
	a.signal(Event{Kind: EventWrote, Bytes: len(data)})
	if a.delegate != nil {
		a.delegate.DidWrite(data, a)
	}
}
