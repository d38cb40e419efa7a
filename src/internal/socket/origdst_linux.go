//go:build linux

package socket

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

// soOriginalDst is SO_ORIGINAL_DST from linux/netfilter_ipv4.h.
const soOriginalDst = 0x50

// OriginalDestination returns the pre-NAT destination of a connection
// accepted through an iptables REDIRECT rule.
func OriginalDestination(conn net.Conn) (netip.AddrPort, error) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("not a TCP connection: %T", conn)
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return netip.AddrPort{}, err
	}

	var (
		mreq    *unix.IPv6Mreq
		sockErr error
	)
	if err := raw.Control(func(fd uintptr) {
		// SO_ORIGINAL_DST fills a sockaddr_in, which fits in an IPv6Mreq.
		mreq, sockErr = unix.GetsockoptIPv6Mreq(int(fd), unix.SOL_IP, soOriginalDst)
	}); err != nil {
		return netip.AddrPort{}, err
	}
	if sockErr != nil {
		return netip.AddrPort{}, fmt.Errorf("SO_ORIGINAL_DST: %w", sockErr)
	}

	// sockaddr_in: family (2 bytes), port (big endian), address.
	b := mreq.Multiaddr
	addr := netip.AddrFrom4([4]byte{b[4], b[5], b[6], b[7]})
	port := uint16(b[2])<<8 | uint16(b[3])
	return netip.AddrPortFrom(addr, port), nil
}
