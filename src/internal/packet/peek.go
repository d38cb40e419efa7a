package packet

// The Peek helpers read header fields from raw bytes without a full parse.
// They report false when data is too short to hold the field.

// PeekVersion returns the IP version nibble.
func PeekVersion(data []byte) (uint8, bool) {
	if len(data) < 1 {
		return 0, false
	}
	return data[0] >> 4, true
}

// PeekProtocol returns the transport protocol of an IPv4 packet.
func PeekProtocol(data []byte) (Protocol, bool) {
	if len(data) < IPv4HeaderLength {
		return 0, false
	}
	return Protocol(data[9]), true
}

// PeekSource returns the source address of an IPv4 packet.
func PeekSource(data []byte) (Address, bool) {
	if len(data) < IPv4HeaderLength {
		return 0, false
	}
	return AddressFromSlice(data[12:16]), true
}

// PeekDestination returns the destination address of an IPv4 packet.
func PeekDestination(data []byte) (Address, bool) {
	if len(data) < IPv4HeaderLength {
		return 0, false
	}
	return AddressFromSlice(data[16:20]), true
}

// PeekSourcePort returns the transport source port of an IPv4 packet.
func PeekSourcePort(data []byte) (Port, bool) {
	offset, ok := transportOffset(data)
	if !ok {
		return 0, false
	}
	return PortFromSlice(data[offset : offset+2]), true
}

// PeekDestinationPort returns the transport destination port of an IPv4 packet.
func PeekDestinationPort(data []byte) (Port, bool) {
	offset, ok := transportOffset(data)
	if !ok {
		return 0, false
	}
	return PortFromSlice(data[offset+2 : offset+4]), true
}

func transportOffset(data []byte) (int, bool) {
	if len(data) < IPv4HeaderLength {
		return 0, false
	}
	offset := int(data[0]&0x0f) * 4
	if offset < IPv4HeaderLength || len(data) < offset+4 {
		return 0, false
	}
	return offset, true
}
