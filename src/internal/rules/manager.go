package rules

import (
	"fmt"
	"net/netip"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/geoip"
	"github.com/maksimkurb/keen-relay/src/internal/log"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

// Manager holds the compiled rule list. It is immutable after NewManager
// and safe for concurrent use.
type Manager struct {
	rules     []*Rule
	factories map[string]socket.AdapterFactory
	geo       geoip.Lookup
	fallback  socket.AdapterFactory
}

var _ dnsproxy.Matcher = (*Manager)(nil)

// NewManager compiles rules. Every adapter a rule names must exist in
// factories; the "direct" factory serves connections no rule matched.
func NewManager(rules []*config.RuleConfig, factories map[string]socket.AdapterFactory, geo geoip.Lookup) (*Manager, error) {
	m := &Manager{
		factories: factories,
		geo:       geo,
		fallback:  factories[config.DefaultAdapterName],
	}
	if m.fallback == nil {
		return nil, fmt.Errorf("adapter %q is not defined", config.DefaultAdapterName)
	}

	for i, rc := range rules {
		r, err := newRule(i, rc)
		if err != nil {
			return nil, fmt.Errorf("rule[%d]: %w", i, err)
		}
		if _, ok := factories[r.Adapter]; !ok {
			return nil, fmt.Errorf("rule[%d]: unknown adapter %s", i, r.Adapter)
		}
		m.rules = append(m.rules, r)
	}

	log.Debugf("Rules compiled: %d rules, %d adapters", len(m.rules), len(factories))
	return m, nil
}

// Rules returns the compiled rules in evaluation order.
func (m *Manager) Rules() []*Rule {
	return m.rules
}

// MatchDomain implements dnsproxy.Matcher. Evaluation stops with unknown at
// the first address rule and records where address mode has to resume.
func (m *Manager) MatchDomain(s *dnsproxy.Session) dnsproxy.MatchResult {
	domain := s.Domain()
	for i := s.IndexToMatch; i < len(m.rules); i++ {
		r := m.rules[i]
		if r.IsAddressRule() {
			s.IndexToMatch = i
			return dnsproxy.MatchUnknown
		}
		if r.MatchDomain(domain) {
			return decide(s, r)
		}
	}
	return dnsproxy.MatchReal
}

// MatchAddress implements dnsproxy.Matcher. It resumes at IndexToMatch
// with the address the upstream answered.
func (m *Manager) MatchAddress(s *dnsproxy.Session) dnsproxy.MatchResult {
	domain := s.Domain()
	var addr netip.Addr
	if s.HasRealIP() {
		addr = s.RealIP.Netip()
	}

	for i := s.IndexToMatch; i < len(m.rules); i++ {
		r := m.rules[i]
		var matched bool
		if r.IsAddressRule() {
			matched = addr.IsValid() && r.MatchAddress(addr, s.CountryCode(m.geo))
		} else {
			matched = r.MatchDomain(domain)
		}
		if matched {
			return decide(s, r)
		}
	}
	return dnsproxy.MatchReal
}

func decide(s *dnsproxy.Session, r *Rule) dnsproxy.MatchResult {
	s.MatchedRule = r
	if r.Fake {
		return dnsproxy.MatchFake
	}
	return dnsproxy.MatchReal
}

// SelectAdapterFactory picks the adapter for a proxied connection.
// Sessions restored from a fake address keep the rule their DNS query
// matched.
func (m *Manager) SelectAdapterFactory(session *socket.ConnectSession) socket.AdapterFactory {
	if r, ok := session.MatchedRule.(*Rule); ok && m.owns(r) {
		return m.factories[r.Adapter]
	}

	r := m.Match(session)
	if r == nil {
		return m.fallback
	}
	session.MatchedRule = r
	return m.factories[r.Adapter]
}

// Match returns the first rule matching the session host or its resolved
// address, nil if none does.
func (m *Manager) Match(session *socket.ConnectSession) *Rule {
	addr, hasAddr := session.Address()
	if !hasAddr {
		if a, err := netip.ParseAddr(session.Host); err == nil {
			addr, hasAddr = a, true
		}
	}

	for _, r := range m.rules {
		if r.IsAddressRule() {
			if hasAddr && r.MatchAddress(addr, m.country(session, addr)) {
				return r
			}
			continue
		}
		if r.IsFinal() || (!session.IsIP() && r.MatchDomain(session.Host)) {
			return r
		}
	}
	return nil
}

func (m *Manager) country(session *socket.ConnectSession, addr netip.Addr) string {
	if session.IPAddress != "" {
		return session.CountryCode(m.geo)
	}
	if m.geo == nil {
		return ""
	}
	return m.geo.Country(addr)
}

func (m *Manager) owns(r *Rule) bool {
	return r.Index >= 0 && r.Index < len(m.rules) && m.rules[r.Index] == r
}
