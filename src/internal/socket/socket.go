package socket

import (
	"crypto/tls"
	"net"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

// RawDelegate receives completions from a RawSocket.
type RawDelegate interface {
	DidConnect(raw RawSocket)
	DidRead(data []byte, raw RawSocket)
	DidWrite(data []byte, raw RawSocket)
	// DidDisconnect is called exactly once. No other callback follows it.
	DidDisconnect(raw RawSocket)
}

// RawSocket is the transport under a proxy socket or an adapter.
type RawSocket interface {
	SetDelegate(d RawDelegate)
	IsConnected() bool
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Connect starts connecting; tlsConfig enables TLS when non-nil. An
	// error means the attempt could not even be started.
	Connect(host string, port packet.Port, tlsConfig *tls.Config) error

	// Disconnect closes the socket once the pending write, if any, is
	// done. ForceDisconnect closes it right away.
	Disconnect()
	ForceDisconnect()

	Write(data []byte)
	ReadData()
	ReadDataToLength(length int)
	// ReadDataToPattern reads until pattern, pattern included. If no match
	// is found within maxLength bytes everything read so far is delivered
	// as is. A maxLength of 0 selects the default scan limit.
	ReadDataToPattern(pattern []byte, maxLength int)
}

// Socket is the surface shared by both halves of a tunnel.
type Socket interface {
	Side() Side
	Status() Status
	IsDisconnected() bool
	Session() *ConnectSession
	SetDelegate(d Delegate)

	ReadData()
	Write(data []byte)
	// Disconnect and ForceDisconnect are no-ops once the socket is cancelled.
	Disconnect(err error)
	ForceDisconnect(err error)

	String() string
}

// ProxySocket is the client-facing half.
type ProxySocket interface {
	Socket
	// Open begins reading the client's request.
	Open()
	// RespondTo tells the client about the adapter that became ready.
	RespondTo(adapter Adapter)
}

// Adapter is the upstream half.
type Adapter interface {
	Socket
	// Open starts connecting to the session's destination.
	Open(session *ConnectSession)
}

// AdapterFactory creates adapters of one configured kind.
type AdapterFactory interface {
	Name() string
	NewAdapter(session *ConnectSession) Adapter
}

// Delegate receives socket events. Tunnels implement it.
type Delegate interface {
	DidConnectAdapter(adapter Adapter)
	// DidDisconnect is called exactly once per socket.
	DidDisconnect(s Socket)
	DidRead(data []byte, from Socket)
	DidWrite(data []byte, by Socket)
	DidBecomeReadyToForward(s Socket)
	DidReceiveSession(session *ConnectSession, from ProxySocket)
	// UpdateAdapter replaces the tunnel's adapter with newAdapter.
	UpdateAdapter(newAdapter Adapter)
}

// isDisconnected treats never-connected sockets as disconnected.
func isDisconnected(s Status) bool {
	return s == StatusClosed || s == StatusInvalid
}
