package socket

import (
	"net/netip"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

// RedirectProxySocket serves connections redirected by the firewall. The
// destination is known up front, so there is no request to parse and
// nothing to answer.
type RedirectProxySocket struct {
	proxyBase
	destination netip.AddrPort
	forwarding  bool
}

// NewRedirectProxySocket wraps raw whose original destination is dst.
func NewRedirectProxySocket(raw RawSocket, dst netip.AddrPort, observer Observer) *RedirectProxySocket {
	s := &RedirectProxySocket{destination: dst}
	s.init(s, "redirect", raw, s, observer)
	return s
}

// Open implements ProxySocket.
func (s *RedirectProxySocket) Open() {
	if !s.open() {
		return
	}
	s.receivedSession(NewConnectSession(s.destination.Addr().String(), packet.Port(s.destination.Port())))
}

// RespondTo implements ProxySocket.
func (s *RedirectProxySocket) RespondTo(Adapter) {
	if s.cancelled || s.forwarding {
		return
	}
	s.forwarding = true
	s.readyForForward()
}

// DidRead implements RawDelegate.
func (s *RedirectProxySocket) DidRead(data []byte, _ RawSocket) {
	s.forwardRead(data)
}

// DidWrite implements RawDelegate.
func (s *RedirectProxySocket) DidWrite(data []byte, _ RawSocket) {
	s.forwardWrite(data)
}
