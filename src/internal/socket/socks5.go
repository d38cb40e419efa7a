package socket

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

const (
	socks5Version     = 0x05
	socks5NoAuth      = 0x00
	socks5CmdConnect  = 0x01
	socks5AtypIPv4    = 0x01
	socks5AtypDomain  = 0x03
	socks5AtypIPv6    = 0x04
	socks5ReplyOK     = 0x00
	socks5HeaderSize  = 4
	socks5PortSize    = 2
	socks5IPv4Size    = 4
	socks5GreetingLen = 2
)

var (
	ErrSOCKSVersion     = errors.New("unsupported SOCKS version")
	ErrSOCKSCommand     = errors.New("unsupported SOCKS command")
	ErrSOCKSAddressType = errors.New("unsupported SOCKS address type")
)

type socks5State uint8

const (
	socks5ReadingGreeting socks5State = iota
	socks5ReadingMethods
	socks5ReplyingMethod
	socks5ReadingHeader
	socks5ReadingIPv4
	socks5ReadingDomainLength
	socks5ReadingDomain
	socks5ReadingPort
	socks5WaitingAdapter
	socks5ReplyingConnect
	socks5Forwarding
)

// SOCKS5ProxySocket speaks the no-auth CONNECT subset of SOCKS5 with IPv4
// and domain name destinations.
type SOCKS5ProxySocket struct {
	proxyBase
	state socks5State
	host  string
}

// NewSOCKS5ProxySocket wraps an accepted raw socket.
func NewSOCKS5ProxySocket(raw RawSocket, observer Observer) *SOCKS5ProxySocket {
	s := &SOCKS5ProxySocket{}
	s.init(s, "socks5", raw, s, observer)
	return s
}

// Open implements ProxySocket.
func (s *SOCKS5ProxySocket) Open() {
	if !s.open() {
		return
	}
	s.state = socks5ReadingGreeting
	s.raw.ReadDataToLength(socks5GreetingLen)
}

// RespondTo implements ProxySocket.
func (s *SOCKS5ProxySocket) RespondTo(Adapter) {
	if s.cancelled || s.state != socks5WaitingAdapter {
		return
	}
	s.state = socks5ReplyingConnect
	// The bound address is not meaningful here; clients ignore it.
	s.raw.Write([]byte{socks5Version, socks5ReplyOK, 0x00, socks5AtypIPv4, 0, 0, 0, 0, 0, 0})
}

// DidRead implements RawDelegate.
func (s *SOCKS5ProxySocket) DidRead(data []byte, _ RawSocket) {
	if s.cancelled {
		return
	}

	switch s.state {
	case socks5ReadingGreeting:
		if len(data) != socks5GreetingLen || data[0] != socks5Version {
			s.fail(fmt.Errorf("%w: %#x", ErrSOCKSVersion, firstByte(data)))
			return
		}
		if data[1] == 0 {
			s.fail(errors.New("no SOCKS authentication methods offered"))
			return
		}
		s.state = socks5ReadingMethods
		s.raw.ReadDataToLength(int(data[1]))

	case socks5ReadingMethods:
		// Only "no authentication" is supported; the offered list is ignored.
		s.state = socks5ReplyingMethod
		s.raw.Write([]byte{socks5Version, socks5NoAuth})

	case socks5ReadingHeader:
		if len(data) != socks5HeaderSize || data[0] != socks5Version {
			s.fail(fmt.Errorf("%w: %#x", ErrSOCKSVersion, firstByte(data)))
			return
		}
		if data[1] != socks5CmdConnect {
			s.fail(fmt.Errorf("%w: %#x", ErrSOCKSCommand, data[1]))
			return
		}
		switch data[3] {
		case socks5AtypIPv4:
			s.state = socks5ReadingIPv4
			s.raw.ReadDataToLength(socks5IPv4Size)
		case socks5AtypDomain:
			s.state = socks5ReadingDomainLength
			s.raw.ReadDataToLength(1)
		case socks5AtypIPv6:
			s.fail(fmt.Errorf("%w: IPv6 destinations are not supported", ErrSOCKSAddressType))
		default:
			s.fail(fmt.Errorf("%w: %#x", ErrSOCKSAddressType, data[3]))
		}

	case socks5ReadingIPv4:
		s.host = packet.AddressFromSlice(data).String()
		s.state = socks5ReadingPort
		s.raw.ReadDataToLength(socks5PortSize)

	case socks5ReadingDomainLength:
		if data[0] == 0 {
			s.fail(errors.New("empty SOCKS domain name"))
			return
		}
		s.state = socks5ReadingDomain
		s.raw.ReadDataToLength(int(data[0]))

	case socks5ReadingDomain:
		s.host = string(data)
		s.state = socks5ReadingPort
		s.raw.ReadDataToLength(socks5PortSize)

	case socks5ReadingPort:
		port := packet.Port(binary.BigEndian.Uint16(data))
		s.state = socks5WaitingAdapter
		s.receivedSession(NewConnectSession(s.host, port))

	case socks5Forwarding:
		s.forwardRead(data)
	}
}

// DidWrite implements RawDelegate.
func (s *SOCKS5ProxySocket) DidWrite(data []byte, _ RawSocket) {
	if s.cancelled {
		return
	}

	switch s.state {
	case socks5ReplyingMethod:
		s.state = socks5ReadingHeader
		s.raw.ReadDataToLength(socks5HeaderSize)
	case socks5ReplyingConnect:
		s.state = socks5Forwarding
		s.readyForForward()
	case socks5Forwarding:
		s.forwardWrite(data)
	}
}

func firstByte(data []byte) byte {
	if len(data) == 0 {
		return 0
	}
	return data[0]
}
