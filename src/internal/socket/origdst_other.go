//go:build !linux

package socket

import (
	"fmt"
	"net"
	"net/netip"
)

// OriginalDestination falls back to the local address where the kernel
// offers no redirect lookup.
func OriginalDestination(conn net.Conn) (netip.AddrPort, error) {
	addr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("not a TCP connection: %T", conn)
	}
	return addr.AddrPort(), nil
}
