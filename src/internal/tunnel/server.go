package tunnel

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

// Options configures a Server.
type Options struct {
	Executor queue.Executor
	Selector AdapterSelector
	Resolver HostResolver
	// FakeIP may be nil when no fake-IP DNS engine runs.
	FakeIP FakeIPLookup

	// ForwardInterval delays the next adapter read after the client took
	// the previous chunk.
	ForwardInterval time.Duration
	// ScanMaxLength bounds HTTP request header scanning.
	ScanMaxLength int

	Observer       Observer
	SocketObserver socket.Observer

	// Now stamps tunnel creation. Defaults to time.Now.
	Now func() time.Time
}

// Server owns every tunnel. Tunnel state lives on the executor; exported
// methods are safe to call from any goroutine that is not the executor.
type Server struct {
	opts Options
	env  *environment

	tunnels map[uint64]*Tunnel
	nextID  uint64
	stopped bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	listeners []net.Listener
}

// NewServer creates a tunnel server.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ScanMaxLength <= 0 {
		opts.ScanMaxLength = socket.DefaultScanLength
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:    opts,
		tunnels: make(map[uint64]*Tunnel),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.env = &environment{
		exec:            opts.Executor,
		selector:        opts.Selector,
		resolver:        opts.Resolver,
		fakeIP:          opts.FakeIP,
		forwardInterval: opts.ForwardInterval,
		observer:        opts.Observer,
		now:             opts.Now,
		onClosed:        s.tunnelDidClose,
	}
	return s
}

// Accept opens a tunnel for proxy. It returns immediately; the tunnel is
// created on the executor.
func (s *Server) Accept(proxy socket.ProxySocket) {
	s.opts.Executor.Async(func() {
		s.open(proxy)
	})
}

func (s *Server) open(proxy socket.ProxySocket) *Tunnel {
	if s.stopped {
		proxy.ForceDisconnect(nil)
		return nil
	}
	s.nextID++
	t := newTunnel(s.nextID, proxy, s.env)
	s.tunnels[t.id] = t
	log.Debugf("Opening %s", t)
	t.Open()
	return t
}

func (s *Server) tunnelDidClose(t *Tunnel) {
	log.Debugf("[tunnel #%d] Closed (up: %d bytes, down: %d bytes)", t.id, t.bytesUp, t.bytesDown)
	delete(s.tunnels, t.id)
}

// Listen binds a listener and serves it until Stop.
func (s *Server) Listen(l *config.ListenerConfig) error {
	newProxy, err := s.proxyConstructor(l.Type)
	if err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(s.ctx, "tcp4", l.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.Address, err)
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	log.Infof("%s listener started on %s", l.Type, ln.Addr())

	s.wg.Add(1)
	go s.serve(ln, newProxy)
	return nil
}

type proxyConstructor func(conn net.Conn) (socket.ProxySocket, error)

func (s *Server) proxyConstructor(listenerType string) (proxyConstructor, error) {
	exec := s.opts.Executor
	observer := s.opts.SocketObserver

	switch listenerType {
	case config.ListenerSOCKS5:
		return func(conn net.Conn) (socket.ProxySocket, error) {
			return socket.NewSOCKS5ProxySocket(socket.NewTCPSocket(exec, conn), observer), nil
		}, nil
	case config.ListenerHTTP:
		return func(conn net.Conn) (socket.ProxySocket, error) {
			return socket.NewHTTPProxySocket(exec, socket.NewTCPSocket(exec, conn), s.opts.ScanMaxLength, observer), nil
		}, nil
	case config.ListenerRedirect:
		return func(conn net.Conn) (socket.ProxySocket, error) {
			dst, err := socket.OriginalDestination(conn)
			if err != nil {
				return nil, err
			}
			return socket.NewRedirectProxySocket(socket.NewTCPSocket(exec, conn), dst, observer), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported listener type: %s", listenerType)
	}
}

func (s *Server) serve(ln net.Listener, newProxy proxyConstructor) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Debugf("TCP accept error: %v", err)
			continue
		}

		proxy, err := newProxy(conn)
		if err != nil {
			log.Debugf("Dropping connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}
		s.Accept(proxy)
	}
}

// ListenAddrs returns the bound listener addresses.
func (s *Server) ListenAddrs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]string, 0, len(s.listeners))
	for _, ln := range s.listeners {
		addrs = append(addrs, ln.Addr().String())
	}
	return addrs
}

// Tunnels returns a snapshot of the open tunnels ordered by id.
func (s *Server) Tunnels() []Info {
	var infos []Info
	s.opts.Executor.Sync(func() {
		infos = make([]Info, 0, len(s.tunnels))
		for _, t := range s.tunnels {
			infos = append(infos, t.info())
		}
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of open tunnels.
func (s *Server) Count() int {
	var n int
	s.opts.Executor.Sync(func() { n = len(s.tunnels) })
	return n
}

// CloseTunnel force-closes one tunnel. It reports false if no tunnel has
// that id.
func (s *Server) CloseTunnel(id uint64) bool {
	var found bool
	s.opts.Executor.Sync(func() {
		if t, ok := s.tunnels[id]; ok {
			found = true
			t.ForceClose()
		}
	})
	return found
}

// Stop closes the listeners and force-closes every tunnel.
func (s *Server) Stop() {
	log.Infof("Stopping tunnel server...")
	s.cancel()

	s.mu.Lock()
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
	s.listeners = nil
	s.mu.Unlock()

	s.wg.Wait()

	s.opts.Executor.Sync(func() {
		s.stopped = true
		for _, t := range s.tunnels {
			t.ForceClose()
		}
	})
	log.Infof("Tunnel server stopped")
}
