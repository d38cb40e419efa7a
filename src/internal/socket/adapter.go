package socket

import (
	"fmt"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
)

// adapterBase carries what every upstream adapter shares. Adapters start
// invalid and become connecting once opened.
type adapterBase struct {
	self     Adapter
	name     string
	raw      RawSocket
	delegate Delegate
	observer Observer

	status    Status
	cancelled bool
	reported  bool
	session   *ConnectSession
}

func (b *adapterBase) init(self Adapter, name string, raw RawSocket, rawDelegate RawDelegate, observer Observer) {
	b.self = self
	b.name = name
	b.raw = raw
	b.observer = observer
	if raw != nil {
		raw.SetDelegate(rawDelegate)
	}
}

// Side implements Socket.
func (b *adapterBase) Side() Side { return SideAdapter }

// Status implements Socket.
func (b *adapterBase) Status() Status { return b.status }

// IsDisconnected implements Socket.
func (b *adapterBase) IsDisconnected() bool { return isDisconnected(b.status) }

// IsCancelled reports whether a disconnect was requested.
func (b *adapterBase) IsCancelled() bool { return b.cancelled }

// Session implements Socket.
func (b *adapterBase) Session() *ConnectSession { return b.session }

// SetDelegate implements Socket.
func (b *adapterBase) SetDelegate(d Delegate) { b.delegate = d }

// ReadData implements Socket.
func (b *adapterBase) ReadData() {
	if b.cancelled || b.raw == nil {
		return
	}
	b.raw.ReadData()
}

// Write implements Socket.
func (b *adapterBase) Write(data []byte) {
	if b.cancelled || b.raw == nil {
		return
	}
	b.raw.Write(data)
}

// Disconnect implements Socket.
func (b *adapterBase) Disconnect(err error) {
	if b.cancelled {
		return
	}
	b.status = StatusDisconnecting
	b.cancelled = true
	if b.session != nil {
		b.session.Disconnected(err, SideAdapter)
	}
	b.signal(Event{Kind: EventDisconnectCalled, Err: err})
	if b.raw != nil {
		b.raw.Disconnect()
	}
}

// ForceDisconnect implements Socket.
func (b *adapterBase) ForceDisconnect(err error) {
	if b.cancelled {
		return
	}
	b.status = StatusDisconnecting
	b.cancelled = true
	if b.session != nil {
		b.session.Disconnected(err, SideAdapter)
	}
	b.signal(Event{Kind: EventForceDisconnectCalled, Err: err})
	if b.raw != nil {
		b.raw.ForceDisconnect()
	}
}

func (b *adapterBase) String() string {
	if b.session != nil {
		return fmt.Sprintf("<%s %s>", b.name, b.session)
	}
	return fmt.Sprintf("<%s>", b.name)
}

// open moves the adapter to connecting. It reports false when cancelled.
func (b *adapterBase) open(session *ConnectSession) bool {
	if b.cancelled {
		return false
	}
	b.session = session
	b.status = StatusConnecting
	b.signal(Event{Kind: EventOpened})
	return true
}

// DidConnect implements RawDelegate.
func (b *adapterBase) DidConnect(RawSocket) {
	b.status = StatusEstablished
	b.signal(Event{Kind: EventConnected})
	if b.delegate != nil {
		b.delegate.DidConnectAdapter(b.self)
	}
}

// DidDisconnect implements RawDelegate.
func (b *adapterBase) DidDisconnect(RawSocket) {
	b.disconnected()
}

func (b *adapterBase) disconnected() {
	if b.reported {
		return
	}
	b.reported = true
	b.status = StatusClosed
	b.cancelled = true
	b.signal(Event{Kind: EventDisconnected})
	d := b.delegate
	b.delegate = nil
	if d != nil {
		d.DidDisconnect(b.self)
	}
}

func (b *adapterBase) readyForForward() {
	b.signal(Event{Kind: EventReadyForForward})
	if b.delegate != nil {
		b.delegate.DidBecomeReadyToForward(b.self)
	}
}

func (b *adapterBase) signal(e Event) {
	if b.observer == nil {
		return
	}
	e.Side = SideAdapter
	e.Socket = b.self.String()
	b.observer.OnSocketEvent(e)
}

// NewAdapterFactories builds one factory per configured adapter, keyed by
// name.
func NewAdapterFactories(adapters []*config.AdapterConfig, exec queue.Executor, dialer Dialer, observer Observer) (map[string]AdapterFactory, error) {
	factories := make(map[string]AdapterFactory, len(adapters))
	for _, a := range adapters {
		var f AdapterFactory
		switch a.Type {
		case config.AdapterDirect:
			f = &DirectAdapterFactory{
				name:     a.Name,
				exec:     exec,
				dialer:   dialer,
				timeout:  a.GetConnectTimeout(),
				observer: observer,
			}
		case config.AdapterReject:
			f = &RejectAdapterFactory{
				name:     a.Name,
				exec:     exec,
				delay:    a.GetRejectDelay(),
				observer: observer,
			}
		default:
			return nil, fmt.Errorf("adapter %s: unsupported type %q", a.Name, a.Type)
		}
		factories[a.Name] = f
	}
	return factories, nil
}

// DirectAdapterFactory creates DirectAdapters.
type DirectAdapterFactory struct {
	name     string
	exec     queue.Executor
	dialer   Dialer
	timeout  time.Duration
	observer Observer
}

// NewDirectAdapterFactory creates a factory dialing with dialer.
func NewDirectAdapterFactory(name string, exec queue.Executor, dialer Dialer, timeout time.Duration, observer Observer) *DirectAdapterFactory {
	return &DirectAdapterFactory{name: name, exec: exec, dialer: dialer, timeout: timeout, observer: observer}
}

// Name implements AdapterFactory.
func (f *DirectAdapterFactory) Name() string { return f.name }

// NewAdapter implements AdapterFactory.
func (f *DirectAdapterFactory) NewAdapter(*ConnectSession) Adapter {
	return NewDirectAdapter(NewOutboundTCPSocket(f.exec, f.dialer, f.timeout), f.observer)
}

// RejectAdapterFactory creates RejectAdapters.
type RejectAdapterFactory struct {
	name     string
	exec     queue.Executor
	delay    time.Duration
	observer Observer
}

// NewRejectAdapterFactory creates a factory whose adapters drop the
// connection after delay.
func NewRejectAdapterFactory(name string, exec queue.Executor, delay time.Duration, observer Observer) *RejectAdapterFactory {
	return &RejectAdapterFactory{name: name, exec: exec, delay: delay, observer: observer}
}

// Name implements AdapterFactory.
func (f *RejectAdapterFactory) Name() string { return f.name }

// NewAdapter implements AdapterFactory.
func (f *RejectAdapterFactory) NewAdapter(*ConnectSession) Adapter {
	return NewRejectAdapter(f.exec, f.delay, f.observer)
}
