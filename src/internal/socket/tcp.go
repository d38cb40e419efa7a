package socket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
)

const (
	// MaxReadSize bounds a single ReadData delivery.
	MaxReadSize = 128 * 1024
	// DefaultScanLength is used by ReadDataToPattern when maxLength is 0.
	DefaultScanLength = 8192
	// DefaultConnectTimeout bounds Connect when no timeout is configured.
	DefaultConnectTimeout = 10 * time.Second
)

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPSocket is a RawSocket over a net.Conn. Every blocking call runs on its
// own goroutine and reports back through the executor. State is only
// touched on the executor.
type TCPSocket struct {
	exec     queue.Executor
	dialer   Dialer
	timeout  time.Duration
	conn     net.Conn
	delegate RawDelegate

	dialCancel        context.CancelFunc
	writePending      bool
	readPending       bool
	closeAfterWriting bool
	cancelled         bool
	closed            bool
	reported          bool

	scanner    *StreamScanner
	readPrefix []byte
}

// NewTCPSocket wraps an accepted connection.
func NewTCPSocket(exec queue.Executor, conn net.Conn) *TCPSocket {
	return &TCPSocket{exec: exec, conn: conn}
}

// NewOutboundTCPSocket creates an unconnected socket that dials with dialer.
// A nil dialer uses net.Dialer, a zero timeout DefaultConnectTimeout.
func NewOutboundTCPSocket(exec queue.Executor, dialer Dialer, timeout time.Duration) *TCPSocket {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &TCPSocket{exec: exec, dialer: dialer, timeout: timeout}
}

// SetDelegate implements RawSocket.
func (s *TCPSocket) SetDelegate(d RawDelegate) {
	s.delegate = d
}

// IsConnected implements RawSocket.
func (s *TCPSocket) IsConnected() bool {
	return s.conn != nil && !s.closed
}

// LocalAddr implements RawSocket.
func (s *TCPSocket) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// RemoteAddr implements RawSocket.
func (s *TCPSocket) RemoteAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// Conn returns the underlying connection, nil before connect.
func (s *TCPSocket) Conn() net.Conn {
	return s.conn
}

// Connect implements RawSocket.
func (s *TCPSocket) Connect(host string, port packet.Port, tlsConfig *tls.Config) error {
	if s.cancelled {
		return nil
	}
	if s.conn != nil || s.dialCancel != nil {
		return fmt.Errorf("socket is already connected")
	}
	if s.dialer == nil {
		return fmt.Errorf("socket has no dialer")
	}
	if host == "" {
		return fmt.Errorf("no address to connect to")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.dialCancel = cancel
	address := net.JoinHostPort(host, port.String())

	go func() {
		defer cancel()
		conn, err := s.dialer.DialContext(ctx, "tcp", address)
		if err == nil && tlsConfig != nil {
			cfg := tlsConfig.Clone()
			if cfg.ServerName == "" {
				cfg.ServerName = host
			}
			tlsConn := tls.Client(conn, cfg)
			if err = tlsConn.HandshakeContext(ctx); err != nil {
				_ = conn.Close()
			} else {
				conn = tlsConn
			}
		}

		s.exec.Async(func() {
			s.dialCancel = nil
			if err != nil {
				log.Debugf("Failed to connect to %s: %v", address, err)
				s.cancelled = true
				s.reportDisconnect()
				return
			}
			if s.cancelled {
				_ = conn.Close()
				s.reportDisconnect()
				return
			}
			s.conn = conn
			if s.delegate != nil {
				s.delegate.DidConnect(s)
			}
		})
	}()
	return nil
}

// Disconnect implements RawSocket.
func (s *TCPSocket) Disconnect() {
	s.cancelled = true
	if s.conn == nil {
		s.abortDial()
		return
	}
	s.closeAfterWriting = true
	s.checkStatus()
}

// ForceDisconnect implements RawSocket.
func (s *TCPSocket) ForceDisconnect() {
	s.cancelled = true
	if s.conn == nil {
		s.abortDial()
		return
	}
	s.close()
}

// Write implements RawSocket.
func (s *TCPSocket) Write(data []byte) {
	if s.cancelled || s.conn == nil {
		return
	}
	if s.writePending {
		log.Warnf("Ignoring write of %d bytes to %s: previous write is still pending", len(data), s.remote())
		return
	}
	if len(data) == 0 {
		s.exec.Async(func() {
			if !s.reported && s.delegate != nil {
				s.delegate.DidWrite(data, s)
			}
		})
		return
	}

	s.writePending = true
	conn := s.conn
	go func() {
		_, err := conn.Write(data)
		s.exec.Async(func() {
			s.writePending = false
			if s.reported {
				return
			}
			if err != nil {
				log.Debugf("Write to %s failed: %v", conn.RemoteAddr(), err)
				s.Disconnect()
				return
			}
			if s.delegate != nil {
				s.delegate.DidWrite(data, s)
			}
			s.checkStatus()
		})
	}()
}

// ReadData implements RawSocket.
func (s *TCPSocket) ReadData() {
	if s.cancelled || s.conn == nil || !s.beginRead() {
		return
	}
	if len(s.readPrefix) > 0 {
		data := s.readPrefix
		s.readPrefix = nil
		s.exec.Async(func() { s.readCallback(data, nil) })
		return
	}

	conn := s.conn
	go func() {
		buf := make([]byte, MaxReadSize)
		n, err := conn.Read(buf)
		s.exec.Async(func() { s.readCallback(buf[:n], err) })
	}()
}

// ReadDataToLength implements RawSocket.
func (s *TCPSocket) ReadDataToLength(length int) {
	if s.cancelled || s.conn == nil || !s.beginRead() {
		return
	}

	prefix := s.readPrefix
	s.readPrefix = nil
	if len(prefix) >= length {
		s.readPrefix = prefix[length:]
		data := prefix[:length:length]
		s.exec.Async(func() { s.readCallback(data, nil) })
		return
	}

	conn := s.conn
	go func() {
		buf := make([]byte, length)
		copy(buf, prefix)
		n, err := io.ReadFull(conn, buf[len(prefix):])
		s.exec.Async(func() { s.readCallback(buf[:len(prefix)+n], err) })
	}()
}

// ReadDataToPattern implements RawSocket.
func (s *TCPSocket) ReadDataToPattern(pattern []byte, maxLength int) {
	if s.cancelled || s.conn == nil {
		return
	}
	if s.readPending {
		log.Warnf("Ignoring pattern read on %s: previous read is still pending", s.remote())
		return
	}
	if maxLength <= 0 {
		maxLength = DefaultScanLength
	}
	s.scanner = NewStreamScanner(pattern, maxLength)
	s.ReadData()
}

// beginRead marks a read as outstanding. Only one may be in flight.
func (s *TCPSocket) beginRead() bool {
	if s.readPending {
		log.Warnf("Ignoring read on %s: previous read is still pending", s.remote())
		return false
	}
	s.readPending = true
	return true
}

func (s *TCPSocket) readCallback(data []byte, err error) {
	s.readPending = false
	if s.cancelled {
		return
	}
	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			log.Debugf("Read from %s failed: %v", s.remote(), err)
		}
		// The peer closed its side or the connection broke.
		s.Disconnect()
		return
	}

	if s.scanner == nil {
		s.deliver(data)
		return
	}

	match, rest, done := s.scanner.AddAndScan(data)
	if !done {
		s.ReadData()
		return
	}
	s.scanner = nil
	if match == nil {
		s.deliver(rest)
		return
	}
	if len(rest) > 0 {
		s.readPrefix = append([]byte(nil), rest...)
	}
	s.deliver(match)
}

func (s *TCPSocket) deliver(data []byte) {
	if s.delegate != nil {
		s.delegate.DidRead(data, s)
	}
}

func (s *TCPSocket) checkStatus() {
	if s.closeAfterWriting && !s.writePending {
		s.close()
	}
}

func (s *TCPSocket) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.exec.Async(s.reportDisconnect)
}

// abortDial handles a disconnect before a connection exists.
func (s *TCPSocket) abortDial() {
	if s.dialCancel != nil {
		// The dial goroutine reports once it notices the cancellation.
		s.dialCancel()
		return
	}
	s.closed = true
	s.exec.Async(s.reportDisconnect)
}

func (s *TCPSocket) reportDisconnect() {
	if s.reported {
		return
	}
	s.reported = true
	d := s.delegate
	s.delegate = nil
	if d != nil {
		d.DidDisconnect(s)
	}
}

func (s *TCPSocket) remote() string {
	if addr := s.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "<unconnected>"
}
