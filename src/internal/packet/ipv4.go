package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// IPv4HeaderLength is the size of an IPv4 header without options.
	IPv4HeaderLength = 20

	// MaxTotalLength is the largest packet the 16-bit total length field
	// can describe.
	MaxTotalLength = 65535

	// DefaultTTL is written when a packet is built with a zero TTL.
	DefaultTTL = 64

	ipv4Version = 4

	maxIPv4HeaderLength = 60
)

// Protocol is the IPv4 transport protocol number.
type Protocol uint8

const (
	ProtocolICMP Protocol = 1
	ProtocolTCP  Protocol = 6
	ProtocolUDP  Protocol = 17
)

// String returns the protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtocolICMP:
		return "icmp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	default:
		return fmt.Sprintf("proto(%d)", uint8(p))
	}
}

// Known reports whether the protocol is one the codec recognises.
func (p Protocol) Known() bool {
	return p == ProtocolICMP || p == ProtocolTCP || p == ProtocolUDP
}

var (
	ErrTooShort           = errors.New("packet shorter than IPv4 header")
	ErrUnsupportedVersion = errors.New("unsupported IP version")
	ErrHeaderLength       = errors.New("header length exceeds packet")
	ErrTotalLength        = errors.New("total length does not match packet size")
	ErrUnknownProtocol    = errors.New("unknown transport protocol")
	ErrNotDecapsulated    = errors.New("transport protocol is not decapsulated")
	ErrSegmentTooShort    = errors.New("packet too short for transport header")
	ErrPacketTooLarge     = errors.New("packet exceeds maximum IPv4 total length")
)

// IPPacket is an IPv4 packet carrying a UDP segment.
//
// Identification and fragment offset are always zero: fragmentation is not
// supported.
type IPPacket struct {
	TOS         uint8
	TTL         uint8
	Protocol    Protocol
	Source      Address
	Destination Address
	// Options holds raw header options. Its length is a multiple of four.
	Options []byte
	Segment *UDPSegment

	data []byte
}

// NewUDPPacket creates a packet ready to Build.
func NewUDPPacket(src Address, srcPort Port, dst Address, dstPort Port, payload []byte) *IPPacket {
	return &IPPacket{
		TTL:         DefaultTTL,
		Protocol:    ProtocolUDP,
		Source:      src,
		Destination: dst,
		Segment: &UDPSegment{
			SourcePort:      srcPort,
			DestinationPort: dstPort,
			Payload:         payload,
		},
	}
}

// Version is always 4.
func (p *IPPacket) Version() uint8 {
	return ipv4Version
}

// HeaderLength returns the header size in bytes including options.
func (p *IPPacket) HeaderLength() int {
	return IPv4HeaderLength + (len(p.Options)+3)/4*4
}

// TotalLength returns header length plus segment length.
func (p *IPPacket) TotalLength() int {
	n := p.HeaderLength()
	if p.Segment != nil {
		n += p.Segment.Length()
	}
	return n
}

// Data returns the backing bytes of the last Parse or Build.
func (p *IPPacket) Data() []byte {
	return p.data
}

// ParseIPv4 decodes an IPv4 packet with a UDP segment.
//
// The returned packet aliases data; callers that reuse their read buffer
// must hand in a copy. TCP and ICMP packets are recognised but rejected
// with ErrNotDecapsulated.
func ParseIPv4(data []byte) (*IPPacket, error) {
	if len(data) < IPv4HeaderLength {
		return nil, ErrTooShort
	}
	if data[0]>>4 != ipv4Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0]>>4)
	}

	headerLength := int(data[0]&0x0f) * 4
	if headerLength < IPv4HeaderLength || headerLength > len(data) {
		return nil, ErrHeaderLength
	}

	if total := int(binary.BigEndian.Uint16(data[2:4])); total != len(data) {
		return nil, fmt.Errorf("%w: header says %d, got %d", ErrTotalLength, total, len(data))
	}

	protocol := Protocol(data[9])
	if !protocol.Known() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, uint8(protocol))
	}
	if len(data) < headerLength+UDPHeaderLength {
		return nil, ErrSegmentTooShort
	}
	if protocol != ProtocolUDP {
		return nil, fmt.Errorf("%w: %s", ErrNotDecapsulated, protocol)
	}

	segment, err := parseUDP(data[headerLength:])
	if err != nil {
		return nil, err
	}

	p := &IPPacket{
		TOS:         data[1],
		TTL:         data[8],
		Protocol:    protocol,
		Source:      AddressFromSlice(data[12:16]),
		Destination: AddressFromSlice(data[16:20]),
		Segment:     segment,
		data:        data,
	}
	if headerLength > IPv4HeaderLength {
		p.Options = data[IPv4HeaderLength:headerLength]
	}
	return p, nil
}

// Build serializes the packet into a fresh buffer, recomputing the total
// length and both checksums. The IP checksum is computed last, over the
// complete header. Packets longer than MaxTotalLength are rejected with
// ErrPacketTooLarge.
func (p *IPPacket) Build() ([]byte, error) {
	headerLength := p.HeaderLength()
	if headerLength > maxIPv4HeaderLength {
		return nil, fmt.Errorf("%w: %d bytes of options", ErrHeaderLength, len(p.Options))
	}
	if total := p.TotalLength(); total > MaxTotalLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, total)
	}
	buf := make([]byte, p.TotalLength())

	ttl := p.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	buf[0] = ipv4Version<<4 | uint8(headerLength/4)
	buf[1] = p.TOS
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	// Identification, flags and fragment offset stay zero.
	buf[8] = ttl
	buf[9] = uint8(p.Protocol)
	p.Source.Put(buf[12:16])
	p.Destination.Put(buf[16:20])
	copy(buf[IPv4HeaderLength:headerLength], p.Options)

	if p.Segment != nil {
		p.Segment.buildInto(buf[headerLength:], p.Source, p.Destination)
	}

	binary.BigEndian.PutUint16(buf[10:12], Checksum(buf[:headerLength]))

	p.data = buf
	return buf, nil
}
