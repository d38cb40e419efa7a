package packet

import "encoding/binary"

// UDPHeaderLength is the fixed size of a UDP header.
const UDPHeaderLength = 8

// UDPSegment is a UDP header with its payload.
type UDPSegment struct {
	SourcePort      Port
	DestinationPort Port
	Payload         []byte
}

// Length returns the segment length as written in the header.
func (s *UDPSegment) Length() int {
	return len(s.Payload) + UDPHeaderLength
}

// parseUDP decodes a UDP segment. The payload aliases data.
func parseUDP(data []byte) (*UDPSegment, error) {
	if len(data) < UDPHeaderLength {
		return nil, ErrSegmentTooShort
	}

	end := int(binary.BigEndian.Uint16(data[4:6]))
	if end < UDPHeaderLength || end > len(data) {
		end = len(data)
	}

	return &UDPSegment{
		SourcePort:      PortFromSlice(data[0:2]),
		DestinationPort: PortFromSlice(data[2:4]),
		Payload:         data[UDPHeaderLength:end],
	}, nil
}

// buildInto writes the segment into buf, which must hold exactly Length()
// bytes. The checksum covers the pseudo-header of the enclosing packet.
func (s *UDPSegment) buildInto(buf []byte, src, dst Address) {
	s.SourcePort.Put(buf[0:2])
	s.DestinationPort.Put(buf[2:4])
	binary.BigEndian.PutUint16(buf[4:6], uint16(s.Length()))
	buf[6], buf[7] = 0, 0
	copy(buf[UDPHeaderLength:], s.Payload)

	csum := transportChecksum(buf, src, dst, ProtocolUDP)
	if csum == 0 {
		// Zero means "no checksum" for UDP over IPv4.
		csum = 0xffff
	}
	binary.BigEndian.PutUint16(buf[6:8], csum)
}
