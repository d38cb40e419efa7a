package mocks

import (
	"crypto/tls"
	"net"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

// ReadKind tells which read method a RawSocket call came from.
type ReadKind uint8

const (
	ReadAny ReadKind = iota
	ReadLength
	ReadPattern
)

// ReadCall records one read request.
type ReadCall struct {
	Kind      ReadKind
	Length    int
	Pattern   []byte
	MaxLength int
}

// MockRawSocket is a socket.RawSocket driven by the test.
//
// Requests are recorded; completions are injected with CompleteConnect,
// Deliver, CompleteWrite and Close. Disconnect without a pending write and
// ForceDisconnect report DidDisconnect right away.
//
// Example usage:
//
//	raw := &MockRawSocket{}
//	s := socket.NewSOCKS5ProxySocket(raw, nil)
//	s.Open()
//	raw.Deliver([]byte{0x05, 0x01})
type MockRawSocket struct {
	// ConnectFunc is called by Connect if not nil
	ConnectFunc func(host string, port packet.Port, tlsConfig *tls.Config) error

	Local  net.Addr
	Remote net.Addr

	Connected   bool
	ConnectHost string
	ConnectPort packet.Port
	Reads       []ReadCall
	Writes      [][]byte

	// Track calls for verification in tests
	ConnectCalls         int
	DisconnectCalls      int
	ForceDisconnectCalls int
	DisconnectReports    int

	delegate          socket.RawDelegate
	writePending      bool
	closeAfterWriting bool
	cancelled         bool
}

var _ socket.RawSocket = (*MockRawSocket)(nil)

// SetDelegate implements socket.RawSocket.
func (m *MockRawSocket) SetDelegate(d socket.RawDelegate) { m.delegate = d }

// IsConnected implements socket.RawSocket.
func (m *MockRawSocket) IsConnected() bool { return m.Connected }

// LocalAddr implements socket.RawSocket.
func (m *MockRawSocket) LocalAddr() net.Addr { return m.Local }

// RemoteAddr implements socket.RawSocket.
func (m *MockRawSocket) RemoteAddr() net.Addr { return m.Remote }

// Connect records the destination.
func (m *MockRawSocket) Connect(host string, port packet.Port, tlsConfig *tls.Config) error {
	m.ConnectCalls++
	m.ConnectHost = host
	m.ConnectPort = port
	if m.ConnectFunc != nil {
		return m.ConnectFunc(host, port, tlsConfig)
	}
	return nil
}

// Disconnect waits for a pending write before reporting.
func (m *MockRawSocket) Disconnect() {
	m.DisconnectCalls++
	m.cancelled = true
	if m.writePending {
		m.closeAfterWriting = true
		return
	}
	m.Close()
}

// ForceDisconnect reports immediately.
func (m *MockRawSocket) ForceDisconnect() {
	m.ForceDisconnectCalls++
	m.cancelled = true
	m.Close()
}

// Write records data as the pending write.
func (m *MockRawSocket) Write(data []byte) {
	if m.cancelled {
		return
	}
	m.writePending = true
	m.Writes = append(m.Writes, append([]byte(nil), data...))
}

// ReadData implements socket.RawSocket.
func (m *MockRawSocket) ReadData() {
	if m.cancelled {
		return
	}
	m.Reads = append(m.Reads, ReadCall{Kind: ReadAny})
}

// ReadDataToLength implements socket.RawSocket.
func (m *MockRawSocket) ReadDataToLength(length int) {
	if m.cancelled {
		return
	}
	m.Reads = append(m.Reads, ReadCall{Kind: ReadLength, Length: length})
}

// ReadDataToPattern implements socket.RawSocket.
func (m *MockRawSocket) ReadDataToPattern(pattern []byte, maxLength int) {
	if m.cancelled {
		return
	}
	m.Reads = append(m.Reads, ReadCall{Kind: ReadPattern, Pattern: pattern, MaxLength: maxLength})
}

// LastRead returns the most recent read request.
func (m *MockRawSocket) LastRead() ReadCall {
	if len(m.Reads) == 0 {
		return ReadCall{}
	}
	return m.Reads[len(m.Reads)-1]
}

// LastWrite returns the most recent write, nil if none.
func (m *MockRawSocket) LastWrite() []byte {
	if len(m.Writes) == 0 {
		return nil
	}
	return m.Writes[len(m.Writes)-1]
}

// CompleteConnect reports a successful connect.
func (m *MockRawSocket) CompleteConnect() {
	m.Connected = true
	if m.delegate != nil {
		m.delegate.DidConnect(m)
	}
}

// Deliver completes the outstanding read with data.
func (m *MockRawSocket) Deliver(data []byte) {
	if m.delegate != nil {
		m.delegate.DidRead(data, m)
	}
}

// CompleteWrite completes the pending write.
func (m *MockRawSocket) CompleteWrite() {
	m.writePending = false
	if m.delegate != nil {
		m.delegate.DidWrite(m.LastWrite(), m)
	}
	if m.closeAfterWriting {
		m.Close()
	}
}

// WritePending reports whether a write awaits CompleteWrite.
func (m *MockRawSocket) WritePending() bool { return m.writePending }

// Close reports the disconnect once.
func (m *MockRawSocket) Close() {
	m.cancelled = true
	m.Connected = false
	d := m.delegate
	m.delegate = nil
	if d != nil {
		m.DisconnectReports++
		d.DidDisconnect(m)
	}
}
