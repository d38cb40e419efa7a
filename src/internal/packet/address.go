package packet

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strconv"
)

// Address is an IPv4 address. The zero value is 0.0.0.0.
type Address uint32

// AddressFrom4 builds an Address from its four network-order bytes.
func AddressFrom4(b [4]byte) Address {
	return Address(binary.BigEndian.Uint32(b[:]))
}

// AddressFromSlice reads an Address from the first four bytes of b.
func AddressFromSlice(b []byte) Address {
	return Address(binary.BigEndian.Uint32(b))
}

// AddressFromNetip converts a netip.Addr. It reports false for anything that
// is not an IPv4 (or IPv4-mapped) address.
func AddressFromNetip(a netip.Addr) (Address, bool) {
	a = a.Unmap()
	if !a.Is4() {
		return 0, false
	}
	return AddressFrom4(a.As4()), true
}

// ParseAddress parses a dotted-quad IPv4 address.
func ParseAddress(s string) (Address, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return 0, err
	}
	addr, ok := AddressFromNetip(a)
	if !ok {
		return 0, fmt.Errorf("not an IPv4 address: %s", s)
	}
	return addr, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// As4 returns the address in network byte order.
func (a Address) As4() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(a))
	return b
}

// Put writes the address in network byte order into b.
func (a Address) Put(b []byte) {
	binary.BigEndian.PutUint32(b, uint32(a))
}

// Netip converts the address to netip.Addr.
func (a Address) Netip() netip.Addr {
	return netip.AddrFrom4(a.As4())
}

// String returns the dotted-quad presentation.
func (a Address) String() string {
	return a.Netip().String()
}

// Port is a transport-layer port number.
type Port uint16

// PortFromSlice reads a network-order port from the first two bytes of b.
func PortFromSlice(b []byte) Port {
	return Port(binary.BigEndian.Uint16(b))
}

// Put writes the port in network byte order into b.
func (p Port) Put(b []byte) {
	binary.BigEndian.PutUint16(b, uint16(p))
}

// String returns the decimal presentation.
func (p Port) String() string {
	return strconv.Itoa(int(p))
}
