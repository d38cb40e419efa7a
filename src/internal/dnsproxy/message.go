package dnsproxy

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
)

var (
	ErrMalformedMessage = errors.New("malformed DNS message")
	ErrNotQuery         = errors.New("DNS message is not a query")
	ErrQueryCount       = errors.New("DNS query must carry exactly one question")
)

// MessageType tells queries and responses apart.
type MessageType uint8

const (
	MessageQuery MessageType = iota
	MessageResponse
)

func (t MessageType) String() string {
	if t == MessageResponse {
		return "response"
	}
	return "query"
}

// Query is a single DNS question.
type Query struct {
	Name string
	Type uint16
}

func (q Query) String() string {
	return fmt.Sprintf("%s %s", q.Name, dns.TypeToString[q.Type])
}

// Message is the subset of a DNS message the engine works with. Answers keep
// their wire representation as dns.RR so records of any type survive a
// parse and rebuild.
type Message struct {
	TransactionID      uint16
	Type               MessageType
	RecursionDesired   bool
	RecursionAvailable bool
	Rcode              int
	Queries            []Query
	Answers            []dns.RR

	payload []byte
}

// ParseMessage decodes a DNS message. The returned message keeps payload as
// its raw form.
func ParseMessage(payload []byte) (*Message, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	m := &Message{
		TransactionID:      msg.Id,
		RecursionDesired:   msg.RecursionDesired,
		RecursionAvailable: msg.RecursionAvailable,
		Rcode:              msg.Rcode,
		Answers:            msg.Answer,
		payload:            payload,
	}
	if msg.Response {
		m.Type = MessageResponse
	}
	for _, q := range msg.Question {
		m.Queries = append(m.Queries, Query{Name: q.Name, Type: q.Qtype})
	}
	return m, nil
}

// Build serializes the message into its payload. A query must carry exactly
// one question.
func (m *Message) Build() error {
	if m.Type == MessageQuery && len(m.Queries) != 1 {
		return ErrQueryCount
	}

	msg := &dns.Msg{
		MsgHdr: dns.MsgHdr{
			Id:                 m.TransactionID,
			Response:           m.Type == MessageResponse,
			Opcode:             dns.OpcodeQuery,
			RecursionDesired:   m.RecursionDesired,
			RecursionAvailable: m.RecursionAvailable,
			Rcode:              m.Rcode,
		},
		Answer: m.Answers,
	}
	for _, q := range m.Queries {
		msg.Question = append(msg.Question, dns.Question{
			Name:   dns.Fqdn(q.Name),
			Qtype:  q.Type,
			Qclass: dns.ClassINET,
		})
	}

	payload, err := msg.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack DNS message: %w", err)
	}
	m.payload = payload
	return nil
}

// Payload returns the raw bytes the message was parsed from or last built to.
func (m *Message) Payload() []byte {
	return m.payload
}

// ResolvedIPv4 returns the address of the first A record among the answers.
func (m *Message) ResolvedIPv4() (packet.Address, bool) {
	for _, rr := range m.Answers {
		if a, ok := rr.(*dns.A); ok {
			if addr := a.A.To4(); addr != nil {
				return packet.AddressFromSlice(addr), true
			}
		}
	}
	return 0, false
}

// NewARecord builds an A record for name.
func NewARecord(name string, ttl uint32, addr packet.Address) *dns.A {
	ip := addr.As4()
	return &dns.A{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(name),
			Rrtype: dns.TypeA,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		A: ip[:],
	}
}
