package dnsproxy

import (
	"fmt"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/geoip"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

// MatchResult is the routing decision for a DNS session.
type MatchResult uint8

const (
	MatchUnknown MatchResult = iota
	MatchReal
	MatchFake
	MatchPass
)

func (r MatchResult) String() string {
	switch r {
	case MatchReal:
		return "real"
	case MatchFake:
		return "fake"
	case MatchPass:
		return "pass"
	default:
		return "unknown"
	}
}

// Rule is the matched policy entry recorded on a session.
type Rule interface {
	fmt.Stringer
}

// Session tracks one intercepted query. It is owned by the server's
// executor: fields are only written there.
type Session struct {
	Request       *Message
	RequestPacket *packet.IPPacket

	// RealIP and FakeIP are zero when unset.
	RealIP packet.Address
	FakeIP packet.Address

	RealResponse *Message
	MatchResult  MatchResult
	MatchedRule  Rule
	// IndexToMatch is where rule evaluation resumes in address mode.
	IndexToMatch int
	// ExpireAt is set once a fake address is bound.
	ExpireAt time.Time

	countryCode *string
}

// NewSession wraps a query message. The message must be a query with
// exactly one question.
func NewSession(msg *Message) (*Session, error) {
	if msg.Type != MessageQuery {
		return nil, ErrNotQuery
	}
	if len(msg.Queries) != 1 {
		return nil, ErrQueryCount
	}
	return &Session{Request: msg}, nil
}

// NewSessionFromPacket parses the UDP payload of p as a query.
func NewSessionFromPacket(p *packet.IPPacket) (*Session, error) {
	if p.Segment == nil {
		return nil, ErrMalformedMessage
	}
	msg, err := ParseMessage(p.Segment.Payload)
	if err != nil {
		return nil, err
	}
	s, err := NewSession(msg)
	if err != nil {
		return nil, err
	}
	s.RequestPacket = p
	return s, nil
}

// TransactionID returns the query's transaction id.
func (s *Session) TransactionID() uint16 {
	return s.Request.TransactionID
}

// Query returns the single question of the request.
func (s *Session) Query() Query {
	return s.Request.Queries[0]
}

// Domain returns the normalized question name.
func (s *Session) Domain() string {
	return utils.NormalizeDomain(s.Query().Name)
}

// HasRealIP reports whether an upstream answer carried an A record.
func (s *Session) HasRealIP() bool {
	return s.RealIP != 0
}

// HasFakeIP reports whether a fake address is bound.
func (s *Session) HasFakeIP() bool {
	return s.FakeIP != 0
}

// CountryCode returns the country of RealIP, looked up once on first use.
// It returns "" while no real address is known.
func (s *Session) CountryCode(lookup geoip.Lookup) string {
	if s.countryCode != nil {
		return *s.countryCode
	}
	if !s.HasRealIP() || lookup == nil {
		return ""
	}
	code := lookup.Country(s.RealIP.Netip())
	s.countryCode = &code
	return code
}

func (s *Session) String() string {
	realIP, fakeIP := "-", "-"
	if s.HasRealIP() {
		realIP = s.RealIP.String()
	}
	if s.HasFakeIP() {
		fakeIP = s.FakeIP.String()
	}
	return fmt.Sprintf("<session domain: %s realIP: %s fakeIP: %s>", s.Domain(), realIP, fakeIP)
}
