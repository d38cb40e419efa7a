package upstreams

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

const (
	// DNS protocol defaults
	defaultDNSPort = "53"

	udpWriteQueueSize = 256
	udpMaxMessageSize = 65535
)

// UDPResolver sends queries over one connected UDP socket. The socket is
// opened on first use and closed again after idleTimeout without traffic.
type UDPResolver struct {
	BaseResolver
	address     string
	idleTimeout time.Duration

	writes chan []byte
	done   chan struct{}
	once   sync.Once

	mu         sync.Mutex
	conn       net.Conn
	lastActive time.Time
}

// NewUDPResolver creates a resolver for address (host or host:port).
func NewUDPResolver(address string, restrictedDomain string, idleTimeout time.Duration) (*UDPResolver, error) {
	host := address
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultDNSPort)
	}

	if _, _, err := net.SplitHostPort(host); err != nil {
		return nil, fmt.Errorf("invalid UDP address: %w", err)
	}

	r := &UDPResolver{
		BaseResolver: BaseResolver{Domain: utils.NormalizeDomain(restrictedDomain)},
		address:      host,
		idleTimeout:  idleTimeout,
		writes:       make(chan []byte, udpWriteQueueSize),
		done:         make(chan struct{}),
	}
	go r.writeLoop()
	return r, nil
}

// Resolve implements dnsproxy.Resolver.
func (r *UDPResolver) Resolve(s *dnsproxy.Session) {
	payload := append([]byte(nil), s.Request.Payload()...)

	select {
	case <-r.done:
	case r.writes <- payload:
	default:
		log.Warnf("[%04x] UDP upstream %s write queue is full, dropping query", s.TransactionID(), r.address)
	}
}

// Stop implements dnsproxy.Resolver.
func (r *UDPResolver) Stop() {
	r.once.Do(func() {
		close(r.done)
		r.mu.Lock()
		r.closeConnLocked()
		r.mu.Unlock()
	})
}

// String returns the upstream URL.
func (r *UDPResolver) String() string {
	return "udp://" + r.address + r.suffix()
}

// isConnected reports whether a socket is currently open.
func (r *UDPResolver) isConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil
}

func (r *UDPResolver) writeLoop() {
	var idle <-chan time.Time
	if r.idleTimeout > 0 {
		ticker := time.NewTicker(r.idleTimeout / 2)
		defer ticker.Stop()
		idle = ticker.C
	}

	for {
		select {
		case <-r.done:
			return
		case payload := <-r.writes:
			r.write(payload)
		case <-idle:
			r.checkIdle()
		}
	}
}

func (r *UDPResolver) write(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return
	default:
	}

	if r.conn == nil {
		conn, err := net.Dial("udp", r.address)
		if err != nil {
			log.Warnf("Failed to connect to UDP upstream %s: %v", r.address, err)
			return
		}
		r.conn = conn
		go r.readLoop(conn)
	}

	r.lastActive = time.Now()
	if _, err := r.conn.Write(payload); err != nil {
		log.Debugf("UDP upstream %s write error: %v", r.address, err)
		r.closeConnLocked()
	}
}

func (r *UDPResolver) readLoop(conn net.Conn) {
	buf := make([]byte, udpMaxMessageSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Debugf("UDP upstream %s read error: %v", r.address, err)
			}
			r.mu.Lock()
			if r.conn == conn {
				r.closeConnLocked()
			}
			r.mu.Unlock()
			return
		}

		r.mu.Lock()
		r.lastActive = time.Now()
		r.mu.Unlock()

		r.deliver(append([]byte(nil), buf[:n]...))
	}
}

func (r *UDPResolver) checkIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil && time.Since(r.lastActive) >= r.idleTimeout {
		log.Debugf("UDP upstream %s idle, closing socket", r.address)
		r.closeConnLocked()
	}
}

func (r *UDPResolver) closeConnLocked() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}
