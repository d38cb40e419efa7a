package dnsproxy

import (
	"syscall"
	"time"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/queue"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

// FamilyIPv4 is the address family tag attached to IPv4 packets.
const FamilyIPv4 = syscall.AF_INET

// Matcher decides whether a session is answered with a fake or a real
// address. Domain mode runs on the question name, address mode runs on the
// upstream answer and only for sessions domain mode left undecided.
// Implementations may record MatchedRule and IndexToMatch on the session.
type Matcher interface {
	MatchDomain(s *Session) MatchResult
	MatchAddress(s *Session) MatchResult
}

// Pool hands out fake addresses.
type Pool interface {
	Allocate() (packet.Address, bool)
	Release(addr packet.Address)
	Contains(addr packet.Address) bool
}

// ResponseHandler accepts raw upstream answers from any goroutine.
type ResponseHandler interface {
	HandleResponse(raw []byte)
}

// Resolver forwards queries upstream. Resolve must not block; answers are
// delivered to the handler set with SetHandler.
type Resolver interface {
	SetHandler(h ResponseHandler)
	Resolve(s *Session)
	Stop()
	String() string
}

// OutputFunc receives packets produced by the engine together with their
// address families.
type OutputFunc func(packets [][]byte, families []int)

// Options configures a Server.
type Options struct {
	Address packet.Address
	Port    packet.Port

	// FakeTTL is the TTL of synthesized answers. The mapping lives 2*FakeTTL.
	FakeTTL time.Duration
	// PendingLifetime bounds how long a forwarded query waits for an answer.
	PendingLifetime time.Duration

	// Pool may be nil, in which case fake matches fall back to real.
	Pool     Pool
	Matcher  Matcher
	Executor queue.Executor
	Output   OutputFunc
	Observer Observer

	// Now is used for ExpireAt stamps. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	session *Session
	task    queue.Task
}

// Server is the fake-IP DNS engine. It accepts raw IPv4 packets addressed
// to Address:Port, answers fake-matched A queries itself and forwards
// everything else to the registered resolvers.
//
// All state lives on the executor; exported methods are safe to call from
// any goroutine, except LookupFakeIP and Snapshot which must not be called
// from the executor itself.
type Server struct {
	opts Options

	resolvers []Resolver
	pending   map[uint16]*entry
	fake      map[packet.Address]*entry
	stopped   bool
}

// NewServer creates a DNS engine.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Output == nil {
		opts.Output = func([][]byte, []int) {}
	}
	return &Server{
		opts:    opts,
		pending: make(map[uint16]*entry),
		fake:    make(map[packet.Address]*entry),
	}
}

// RegisterResolver adds an upstream. Every forwarded query is sent to all
// registered resolvers; the first answer wins.
func (s *Server) RegisterResolver(r Resolver) {
	r.SetHandler(s)
	s.opts.Executor.Async(func() {
		if s.stopped {
			r.Stop()
			return
		}
		s.resolvers = append(s.resolvers, r)
	})
}

// Input offers a raw packet to the engine. It returns false when the packet
// is not a well-formed DNS query addressed to this server; such packets are
// left to the caller.
func (s *Server) Input(data []byte, family int) bool {
	if family != FamilyIPv4 {
		return false
	}
	if proto, ok := packet.PeekProtocol(data); !ok || proto != packet.ProtocolUDP {
		return false
	}
	if dst, ok := packet.PeekDestination(data); !ok || dst != s.opts.Address {
		return false
	}
	if port, ok := packet.PeekDestinationPort(data); !ok || port != s.opts.Port {
		return false
	}

	ipPacket, err := packet.ParseIPv4(data)
	if err != nil {
		log.Debugf("Dropping malformed packet to DNS server: %v", err)
		return false
	}
	session, err := NewSessionFromPacket(ipPacket)
	if err != nil {
		log.Debugf("Dropping DNS packet from %s: %v", ipPacket.Source, err)
		return false
	}

	s.opts.Executor.Async(func() {
		s.lookup(session)
	})
	return true
}

// HandleResponse implements ResponseHandler.
func (s *Server) HandleResponse(raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		log.Debugf("Failed to parse response from upstream DNS server: %v", err)
		return
	}
	s.opts.Executor.Async(func() {
		s.handleResponse(msg)
	})
}

// IsFakeIP reports whether addr lies in the fake range.
func (s *Server) IsFakeIP(addr packet.Address) bool {
	return s.opts.Pool != nil && s.opts.Pool.Contains(addr)
}

// LookupFakeIP returns a copy of the session bound to a fake address, or nil.
func (s *Server) LookupFakeIP(addr packet.Address) *Session {
	var found *Session
	s.opts.Executor.Sync(func() {
		if e, ok := s.fake[addr]; ok {
			copied := *e.session
			found = &copied
		}
	})
	return found
}

// FakeMapping is an entry of the fake-address map.
type FakeMapping struct {
	Address  packet.Address
	Domain   string
	RealIP   packet.Address
	Rule     string
	ExpireAt time.Time
}

// Snapshot reports current fake mappings and the number of pending queries.
func (s *Server) Snapshot() (mappings []FakeMapping, pending int) {
	s.opts.Executor.Sync(func() {
		pending = len(s.pending)
		mappings = make([]FakeMapping, 0, len(s.fake))
		for addr, e := range s.fake {
			m := FakeMapping{
				Address:  addr,
				Domain:   e.session.Domain(),
				RealIP:   e.session.RealIP,
				ExpireAt: e.session.ExpireAt,
			}
			if e.session.MatchedRule != nil {
				m.Rule = e.session.MatchedRule.String()
			}
			mappings = append(mappings, m)
		}
	})
	return mappings, pending
}

// Stop stops every resolver and cancels all pending timers. Fake addresses
// still bound are released.
func (s *Server) Stop() {
	s.opts.Executor.Sync(func() {
		if s.stopped {
			return
		}
		s.stopped = true

		for _, r := range s.resolvers {
			r.Stop()
		}
		s.resolvers = nil

		for id, e := range s.pending {
			e.task.Cancel()
			delete(s.pending, id)
		}
		for addr, e := range s.fake {
			e.task.Cancel()
			delete(s.fake, addr)
			if s.opts.Pool != nil {
				s.opts.Pool.Release(addr)
			}
		}
	})
}

func (s *Server) lookup(session *Session) {
	if s.stopped {
		return
	}
	s.emit(EventQuery, session)

	query := session.Query()
	log.Debugf("[%04x] DNS query: %s from %s:%d", session.TransactionID(), query,
		session.RequestPacket.Source, session.RequestPacket.Segment.SourcePort)

	if !shouldMatch(query) {
		session.MatchResult = MatchReal
		s.lookupRemotely(session)
		return
	}

	if s.opts.Matcher != nil {
		session.MatchResult = s.opts.Matcher.MatchDomain(session)
	}

	switch session.MatchResult {
	case MatchFake:
		if !s.setUpFakeIP(session) {
			session.MatchResult = MatchReal
			s.lookupRemotely(session)
			return
		}
		s.outputSession(session)
	case MatchReal, MatchUnknown:
		s.lookupRemotely(session)
	default:
		log.Debugf("[%04x] Unexpected %s result in domain mode, forwarding unmodified", session.TransactionID(), session.MatchResult)
		session.MatchResult = MatchReal
		s.lookupRemotely(session)
	}
}

// shouldMatch limits policy evaluation to A queries.
func shouldMatch(q Query) bool {
	return q.Type == dns.TypeA
}

func (s *Server) lookupRemotely(session *Session) {
	id := session.TransactionID()
	if old, ok := s.pending[id]; ok {
		log.Debugf("[%04x] Replacing pending query for %s", id, old.session.Domain())
		old.task.Cancel()
	}

	e := &entry{session: session}
	e.task = s.opts.Executor.After(s.opts.PendingLifetime, func() {
		if s.pending[id] != e {
			return
		}
		delete(s.pending, id)
		log.Debugf("[%04x] No upstream answer for %s, dropping", id, session.Domain())
		s.emit(EventPendingExpired, session)
	})
	s.pending[id] = e

	resolvers := s.selectResolvers(session.Domain())
	if len(resolvers) == 0 {
		log.Warnf("[%04x] No upstream resolvers registered", id)
	}
	for _, r := range resolvers {
		log.Debugf("[%04x] Querying upstream: %s", id, r.String())
		r.Resolve(session)
	}
}

// DomainRestricted is implemented by resolvers that only serve one domain
// and its subdomains.
type DomainRestricted interface {
	GetDomain() string
}

// selectResolvers returns the resolvers restricted to the most specific
// domain matching the query, or every unrestricted resolver when none match.
func (s *Server) selectResolvers(domain string) []Resolver {
	var general, specific []Resolver
	best := -1
	for _, r := range s.resolvers {
		restricted, ok := r.(DomainRestricted)
		if !ok || restricted.GetDomain() == "" {
			general = append(general, r)
			continue
		}
		matches, specificity := utils.MatchDomain(domain, restricted.GetDomain())
		if !matches {
			continue
		}
		switch {
		case int(specificity) > best:
			best = int(specificity)
			specific = []Resolver{r}
		case int(specificity) == best:
			specific = append(specific, r)
		}
	}
	if len(specific) > 0 {
		return specific
	}
	return general
}

func (s *Server) setUpFakeIP(session *Session) bool {
	if s.opts.Pool == nil {
		return false
	}
	addr, ok := s.opts.Pool.Allocate()
	if !ok {
		log.Warnf("[%04x] Fake IP pool exhausted, answering %s with real address", session.TransactionID(), session.Domain())
		s.emit(EventPoolExhausted, session)
		return false
	}

	session.FakeIP = addr
	session.ExpireAt = s.opts.Now().Add(s.opts.FakeTTL)

	e := &entry{session: session}
	e.task = s.opts.Executor.After(2*s.opts.FakeTTL, func() {
		if s.fake[addr] != e {
			return
		}
		delete(s.fake, addr)
		s.opts.Pool.Release(addr)
		log.Debugf("Fake IP %s for %s released", addr, session.Domain())
		s.emit(EventFakeReleased, session)
	})
	s.fake[addr] = e
	return true
}

func (s *Server) handleResponse(msg *Message) {
	if s.stopped {
		return
	}

	e, ok := s.pending[msg.TransactionID]
	if !ok {
		// Several resolvers answer the same query; only the first one counts.
		log.Debugf("[%04x] No pending query for upstream answer", msg.TransactionID)
		s.observe(Event{Kind: EventUnmatchedResponse, TransactionID: msg.TransactionID})
		return
	}
	delete(s.pending, msg.TransactionID)
	e.task.Cancel()

	session := e.session
	session.RealResponse = msg
	if addr, ok := msg.ResolvedIPv4(); ok {
		session.RealIP = addr
	}

	if session.MatchResult != MatchFake && session.MatchResult != MatchReal && s.opts.Matcher != nil {
		session.MatchResult = s.opts.Matcher.MatchAddress(session)
	}

	switch session.MatchResult {
	case MatchFake:
		if !s.setUpFakeIP(session) {
			session.MatchResult = MatchReal
		}
	case MatchReal:
	default:
		log.Debugf("[%04x] %s result in address mode for %s, relaying upstream answer",
			msg.TransactionID, session.MatchResult, session.Domain())
	}
	s.outputSession(session)
}

func (s *Server) outputSession(session *Session) {
	var payload []byte
	kind := EventRealAnswer

	switch session.MatchResult {
	case MatchFake:
		response := &Message{
			TransactionID:      session.TransactionID(),
			Type:               MessageResponse,
			RecursionDesired:   session.Request.RecursionDesired,
			RecursionAvailable: true,
			Queries:            session.Request.Queries,
			Answers: []dns.RR{
				NewARecord(session.Query().Name, uint32(s.opts.FakeTTL/time.Second), session.FakeIP),
			},
		}
		if err := response.Build(); err != nil {
			log.Errorf("[%04x] Failed to build DNS response: %v", session.TransactionID(), err)
			return
		}
		session.ExpireAt = s.opts.Now().Add(s.opts.FakeTTL)
		payload = response.Payload()
		kind = EventFakeAnswer
		log.Debugf("[%04x] Fake A record: %s -> %s (TTL: %d)", session.TransactionID(),
			session.Domain(), session.FakeIP, uint32(s.opts.FakeTTL/time.Second))
	default:
		if session.RealResponse == nil {
			return
		}
		payload = session.RealResponse.Payload()
	}

	request := session.RequestPacket
	out, err := packet.NewUDPPacket(s.opts.Address, s.opts.Port, request.Source, request.Segment.SourcePort, payload).Build()
	if err != nil {
		log.Warnf("[%04x] Dropping %d byte answer for %s: %v", session.TransactionID(), len(payload), session.Domain(), err)
		s.emit(EventAnswerDropped, session)
		return
	}
	s.opts.Output([][]byte{out}, []int{FamilyIPv4})
	s.emit(kind, session)
}

func (s *Server) emit(kind EventKind, session *Session) {
	addr := session.RealIP
	if session.HasFakeIP() {
		addr = session.FakeIP
	}
	s.observe(Event{
		Kind:          kind,
		TransactionID: session.TransactionID(),
		Domain:        session.Domain(),
		Address:       addr,
		Result:        session.MatchResult,
	})
}

func (s *Server) observe(e Event) {
	if s.opts.Observer != nil {
		s.opts.Observer.OnDNSEvent(e)
	}
}
