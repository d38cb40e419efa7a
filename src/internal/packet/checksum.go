package packet

// sum adds data to initial as a sequence of big-endian 16-bit words. An odd
// trailing byte is padded with zero.
func sum(data []byte, initial uint32) uint32 {
	s := initial
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		s += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		s += uint32(data[n-1]) << 8
	}
	return s
}

// fold reduces a 32-bit accumulator to 16 bits with end-around carry.
func fold(s uint32) uint16 {
	for s>>16 != 0 {
		s = s&0xffff + s>>16
	}
	return uint16(s)
}

// Checksum returns the internet checksum of data.
//
// Running it over a header that already carries a valid checksum yields 0.
func Checksum(data []byte) uint16 {
	return ^fold(sum(data, 0))
}

// PseudoHeaderSum returns the unfolded sum of the IPv4 pseudo-header used by
// UDP and TCP checksums: both addresses as 16-bit words, the protocol and
// the segment length.
func PseudoHeaderSum(src, dst Address, protocol Protocol, length int) uint32 {
	s := uint32(src>>16) + uint32(src&0xffff)
	s += uint32(dst>>16) + uint32(dst&0xffff)
	s += uint32(protocol)
	s += uint32(length)
	return s
}

// transportChecksum computes the checksum of a transport segment with the
// pseudo-header folded in.
func transportChecksum(segment []byte, src, dst Address, protocol Protocol) uint16 {
	return ^fold(sum(segment, PseudoHeaderSum(src, dst, protocol, len(segment))))
}
