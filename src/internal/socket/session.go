package socket

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/maksimkurb/keen-relay/src/internal/geoip"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

// Side tells which half of a tunnel a socket is.
type Side uint8

const (
	SideProxy Side = iota
	SideAdapter
)

func (s Side) String() string {
	if s == SideAdapter {
		return "adapter"
	}
	return "proxy"
}

// ConnectSession is the destination requested by a client.
type ConnectSession struct {
	Host string
	Port packet.Port

	// IPAddress is the address the adapter connects to. It stays empty when
	// the host could not be resolved, which makes the connect attempt fail.
	IPAddress string

	// FakeIP is set when Host was restored from a fake address.
	FakeIP packet.Address
	// MatchedRule is the policy decision carried over from the DNS session
	// that handed out FakeIP.
	MatchedRule fmt.Stringer

	// Err and DisconnectedBy record the first disconnect of either side.
	Err            error
	DisconnectedBy Side
	disconnected   bool

	countryCode *string
}

// NewConnectSession creates a session for host:port.
func NewConnectSession(host string, port packet.Port) *ConnectSession {
	return &ConnectSession{Host: host, Port: port}
}

// IsIP reports whether Host is an IPv4 literal.
func (s *ConnectSession) IsIP() bool {
	a, err := netip.ParseAddr(s.Host)
	return err == nil && a.Unmap().Is4()
}

// HostAddress returns Host as an address when it is an IPv4 literal.
func (s *ConnectSession) HostAddress() (packet.Address, bool) {
	a, err := packet.ParseAddress(s.Host)
	return a, err == nil
}

// Address returns the resolved address, if any.
func (s *ConnectSession) Address() (netip.Addr, bool) {
	a, err := netip.ParseAddr(s.IPAddress)
	if err != nil {
		return netip.Addr{}, false
	}
	return a, true
}

// IsFakeIPRestored reports whether Host came from a fake address mapping.
func (s *ConnectSession) IsFakeIPRestored() bool {
	return s.FakeIP != 0
}

// CountryCode looks up the resolved address once and caches the result.
func (s *ConnectSession) CountryCode(lookup geoip.Lookup) string {
	if s.countryCode != nil {
		return *s.countryCode
	}
	code := ""
	if a, ok := s.Address(); ok && lookup != nil {
		code = lookup.Country(a)
	}
	s.countryCode = &code
	return code
}

// Disconnected records why and by whom the session ended. Only the first
// call is kept.
func (s *ConnectSession) Disconnected(err error, by Side) {
	if s.disconnected {
		return
	}
	s.disconnected = true
	s.Err = err
	s.DisconnectedBy = by
}

// HostPort returns the requested destination in host:port form.
func (s *ConnectSession) HostPort() string {
	return net.JoinHostPort(s.Host, s.Port.String())
}

func (s *ConnectSession) String() string {
	return s.HostPort()
}
