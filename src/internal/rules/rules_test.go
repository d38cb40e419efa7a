package rules

import (
	"net/netip"
	"testing"

	"github.com/miekg/dns"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/mocks"
	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/socket"
)

type staticGeo map[string]string

func (g staticGeo) Country(addr netip.Addr) string {
	return g[addr.String()]
}

func newFactories(t *testing.T) map[string]socket.AdapterFactory {
	t.Helper()
	cfg := &config.Config{Adapters: []*config.AdapterConfig{{Name: "vpn", Type: config.AdapterDirect}}}
	factories, err := socket.NewAdapterFactories(cfg.GetAdapters(), mocks.NewManualExecutor(), nil, nil)
	if err != nil {
		t.Fatalf("Failed to create factories: %v", err)
	}
	return factories
}

func newSession(t *testing.T, name string) *dnsproxy.Session {
	t.Helper()
	msg := &dnsproxy.Message{
		TransactionID: 1,
		Type:          dnsproxy.MessageQuery,
		Queries:       []dnsproxy.Query{{Name: name, Type: dns.TypeA}},
	}
	if err := msg.Build(); err != nil {
		t.Fatalf("Failed to build query: %v", err)
	}
	s, err := dnsproxy.NewSession(msg)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return s
}

func TestRule_MatchDomain(t *testing.T) {
	tests := []struct {
		name   string
		rule   *config.RuleConfig
		domain string
		want   bool
	}{
		{"exact", &config.RuleConfig{Type: config.RuleDomain, Values: []string{"example.com"}}, "example.com.", true},
		{"exact rejects subdomain", &config.RuleConfig{Type: config.RuleDomain, Values: []string{"example.com"}}, "www.example.com", false},
		{"exact wildcard", &config.RuleConfig{Type: config.RuleDomain, Values: []string{"*.example.com"}}, "a.b.example.com", true},
		{"suffix base", &config.RuleConfig{Type: config.RuleDomainSuffix, Values: []string{"example.com"}}, "EXAMPLE.com", true},
		{"suffix sub", &config.RuleConfig{Type: config.RuleDomainSuffix, Values: []string{"example.com"}}, "deep.sub.example.com", true},
		{"suffix boundary", &config.RuleConfig{Type: config.RuleDomainSuffix, Values: []string{"example.com"}}, "badexample.com", false},
		{"keyword", &config.RuleConfig{Type: config.RuleDomainKeyword, Values: []string{"ads"}}, "cdn.ads-server.net", true},
		{"keyword miss", &config.RuleConfig{Type: config.RuleDomainKeyword, Values: []string{"ads"}}, "example.org", false},
		{"glob", &config.RuleConfig{Type: config.RuleDomainGlob, Values: []string{"*.cdn.*.net"}}, "x.cdn.fast.net", true},
		{"glob label", &config.RuleConfig{Type: config.RuleDomainGlob, Values: []string{"*.cdn.*.net"}}, "a.b.cdn.fast.net", false},
		{"final", &config.RuleConfig{Type: config.RuleFinal}, "anything", true},
		{"cidr", &config.RuleConfig{Type: config.RuleIPCIDR, Values: []string{"10.0.0.0/8"}}, "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := newRule(0, tt.rule)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := r.MatchDomain(tt.domain); got != tt.want {
				t.Errorf("MatchDomain(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func TestRule_MatchAddress(t *testing.T) {
	cidr, _ := newRule(0, &config.RuleConfig{Type: config.RuleIPCIDR, Values: []string{"10.1.0.0/16"}})
	geo, _ := newRule(1, &config.RuleConfig{Type: config.RuleGeoIP, Values: []string{"ru"}})

	if !cidr.MatchAddress(netip.MustParseAddr("10.1.2.3"), "") {
		t.Error("Expected CIDR match")
	}
	if cidr.MatchAddress(netip.MustParseAddr("10.2.0.1"), "") {
		t.Error("Expected CIDR miss")
	}
	if cidr.MatchAddress(netip.Addr{}, "") {
		t.Error("Expected invalid address to miss")
	}
	if !geo.MatchAddress(netip.MustParseAddr("1.1.1.1"), "RU") {
		t.Error("Expected country match")
	}
	if geo.MatchAddress(netip.MustParseAddr("1.1.1.1"), "") {
		t.Error("Expected unknown country to miss")
	}
}

func TestNewManager_Errors(t *testing.T) {
	factories := newFactories(t)

	if _, err := NewManager([]*config.RuleConfig{{Type: config.RuleFinal, Adapter: "nope"}}, factories, nil); err == nil {
		t.Error("Expected error for unknown adapter")
	}
	if _, err := NewManager([]*config.RuleConfig{{Type: config.RuleDomainGlob, Values: []string{"[unclosed"}, Adapter: "vpn"}}, factories, nil); err == nil {
		t.Error("Expected error for invalid glob")
	}
	if _, err := NewManager(nil, map[string]socket.AdapterFactory{}, nil); err == nil {
		t.Error("Expected error without a direct adapter")
	}
}

func TestManager_DNSModes(t *testing.T) {
	rules := []*config.RuleConfig{
		{Type: config.RuleDomainSuffix, Values: []string{"blocked.example"}, Adapter: "vpn", DNS: config.DNSModeFake},
		{Type: config.RuleDomain, Values: []string{"plain.example"}, Adapter: "direct"},
		{Type: config.RuleIPCIDR, Values: []string{"203.0.113.0/24"}, Adapter: "vpn", DNS: config.DNSModeFake},
		{Type: config.RuleDomainKeyword, Values: []string{"late"}, Adapter: "vpn", DNS: config.DNSModeFake},
		{Type: config.RuleGeoIP, Values: []string{"NL"}, Adapter: "vpn", DNS: config.DNSModeFake},
	}
	geo := staticGeo{"198.51.100.7": "NL"}
	m, err := NewManager(rules, newFactories(t), geo)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	s := newSession(t, "www.blocked.example.")
	if got := m.MatchDomain(s); got != dnsproxy.MatchFake {
		t.Errorf("Expected fake for suffix rule, got %s", got)
	}
	if s.MatchedRule != m.Rules()[0] {
		t.Errorf("Expected rule 0 to be recorded, got %v", s.MatchedRule)
	}

	s = newSession(t, "plain.example.")
	if got := m.MatchDomain(s); got != dnsproxy.MatchReal {
		t.Errorf("Expected real for plain rule, got %s", got)
	}

	tests := []struct {
		name   string
		domain string
		realIP string
		want   dnsproxy.MatchResult
		rule   int
	}{
		{"cidr", "other.example.", "203.0.113.9", dnsproxy.MatchFake, 2},
		{"domain rule after address rule", "late.example.", "192.0.2.1", dnsproxy.MatchFake, 3},
		{"geoip", "nl.example.", "198.51.100.7", dnsproxy.MatchFake, 4},
		{"nothing", "none.example.", "192.0.2.1", dnsproxy.MatchReal, -1},
		{"no answer", "none.example.", "", dnsproxy.MatchReal, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, tt.domain)
			if got := m.MatchDomain(s); got != dnsproxy.MatchUnknown {
				t.Fatalf("Expected domain mode to stop at the address rule, got %s", got)
			}
			if s.IndexToMatch != 2 {
				t.Fatalf("Expected IndexToMatch 2, got %d", s.IndexToMatch)
			}
			if tt.realIP != "" {
				s.RealIP = packet.MustParseAddress(tt.realIP)
			}
			if got := m.MatchAddress(s); got != tt.want {
				t.Errorf("MatchAddress = %s, want %s", got, tt.want)
			}
			if tt.rule >= 0 && s.MatchedRule != m.Rules()[tt.rule] {
				t.Errorf("Expected rule %d, got %v", tt.rule, s.MatchedRule)
			}
			if tt.rule < 0 && s.MatchedRule != nil {
				t.Errorf("Expected no rule, got %v", s.MatchedRule)
			}
		})
	}
}

func TestManager_SelectAdapterFactory(t *testing.T) {
	rules := []*config.RuleConfig{
		{Type: config.RuleDomainSuffix, Values: []string{"vpn.example"}, Adapter: "vpn", DNS: config.DNSModeFake},
		{Type: config.RuleIPCIDR, Values: []string{"10.0.0.0/8"}, Adapter: "reject"},
	}
	m, err := NewManager(rules, newFactories(t), nil)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tests := []struct {
		name      string
		host      string
		ipAddress string
		want      string
	}{
		{"domain", "a.vpn.example", "93.184.216.34", "vpn"},
		{"ip literal", "10.1.1.1", "10.1.1.1", "reject"},
		{"resolved address", "intranet.local", "10.2.2.2", "reject"},
		{"fallback", "example.org", "93.184.216.34", "direct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := socket.NewConnectSession(tt.host, 443)
			session.IPAddress = tt.ipAddress
			if got := m.SelectAdapterFactory(session).Name(); got != tt.want {
				t.Errorf("Expected adapter %s, got %s", tt.want, got)
			}
		})
	}

	// A restored session keeps its DNS-time rule even if the resolved
	// address would match another one.
	session := socket.NewConnectSession("restored.example", 443)
	session.IPAddress = "10.3.3.3"
	session.MatchedRule = m.Rules()[0]
	if got := m.SelectAdapterFactory(session).Name(); got != "vpn" {
		t.Errorf("Expected restored rule adapter vpn, got %s", got)
	}

	// Rules of another manager are re-evaluated.
	other, _ := NewManager(rules, newFactories(t), nil)
	session.MatchedRule = other.Rules()[0]
	if got := m.SelectAdapterFactory(session).Name(); got != "reject" {
		t.Errorf("Expected re-evaluation, got %s", got)
	}
}
