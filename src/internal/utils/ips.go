package utils

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// IPv4ToUint32 converts an IPv4 (or IPv4-mapped) address to its numeric form.
func IPv4ToUint32(addr netip.Addr) (uint32, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return 0, fmt.Errorf("invalid IPv4 address: %s", addr)
	}
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:]), nil
}

// Uint32ToIPv4 is the inverse of IPv4ToUint32.
func Uint32ToIPv4(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

// IPv4PrefixBounds returns the network and broadcast addresses of an IPv4
// prefix as numbers.
func IPv4PrefixBounds(prefix netip.Prefix) (network, broadcast uint32, err error) {
	prefix = prefix.Masked()
	network, err = IPv4ToUint32(prefix.Addr())
	if err != nil {
		return 0, 0, err
	}
	bits := prefix.Bits()
	if bits < 0 || bits > 32 {
		return 0, 0, fmt.Errorf("invalid prefix length: %d", bits)
	}
	hostBits := uint(32 - bits)
	broadcast = network | uint32((uint64(1)<<hostBits)-1)
	return network, broadcast, nil
}
