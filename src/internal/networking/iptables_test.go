package networking

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/maksimkurb/keen-relay/src/internal/config"
)

func testParams(interfaces ...string) RedirectParams {
	return RedirectParams{
		DNSAddress:   netip.MustParseAddr("10.77.0.2"),
		DNSPort:      53,
		FakeRange:    netip.MustParsePrefix("198.18.0.0/15"),
		RedirectPort: 12345,
		Interfaces:   interfaces,
	}
}

func ruleStrings(rules []*RedirectRule) []string {
	var out []string
	for _, r := range rules {
		out = append(out, r.String())
	}
	return out
}

func TestProcessRules(t *testing.T) {
	tests := []struct {
		name      string
		templates []*config.IPTablesRule
		params    RedirectParams
		expected  []string
	}{
		{
			name:      "Default rules without interfaces",
			templates: DefaultRules(nil),
			params:    testParams(),
			expected: []string{
				"-p udp --dport 53 -j DNAT --to-destination 10.77.0.2:53",
				"-p tcp -d 198.18.0.0/15 -j REDIRECT --to-ports 12345",
			},
		},
		{
			name:      "Default rules per interface",
			templates: DefaultRules([]string{"br0", "br1"}),
			params:    testParams("br0", "br1"),
			expected: []string{
				"-i br0 -p udp --dport 53 -j DNAT --to-destination 10.77.0.2:53",
				"-i br1 -p udp --dport 53 -j DNAT --to-destination 10.77.0.2:53",
				"-i br0 -p tcp -d 198.18.0.0/15 -j REDIRECT --to-ports 12345",
				"-i br1 -p tcp -d 198.18.0.0/15 -j REDIRECT --to-ports 12345",
			},
		},
		{
			name: "Custom rule without variables",
			templates: []*config.IPTablesRule{
				{Rule: []string{"-p", "tcp", "--dport", "80", "-j", "RETURN"}},
			},
			params:   testParams(),
			expected: []string{"-p tcp --dport 80 -j RETURN"},
		},
		{
			name: "Interface rule dropped without interfaces",
			templates: []*config.IPTablesRule{
				{Rule: []string{"-i", "{{interface}}", "-j", "RETURN"}},
				{Rule: []string{"-d", "{{fake_range}}", "-j", "RETURN"}},
			},
			params:   testParams(),
			expected: []string{"-d 198.18.0.0/15 -j RETURN"},
		},
		{
			name: "Variables inside a larger part",
			templates: []*config.IPTablesRule{
				{Rule: []string{"-m", "comment", "--comment", "dns={{dns_address}}#{{dns_port}}"}},
			},
			params:   testParams(),
			expected: []string{"-m comment --comment dns=10.77.0.2#53"},
		},
		{
			name:      "No templates",
			templates: nil,
			params:    testParams(),
			expected:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := processRules("KEEN_RELAY", tt.templates, tt.params)
			got := ruleStrings(rules)

			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d rules, got %d: %v", len(tt.expected), len(got), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Rule %d: expected %q, got %q", i, tt.expected[i], got[i])
				}
				if rules[i].Chain != "KEEN_RELAY" {
					t.Errorf("Rule %d: expected chain KEEN_RELAY, got %s", i, rules[i].Chain)
				}
			}
		})
	}
}

func TestProcessRules_DoesNotModifyTemplates(t *testing.T) {
	templates := DefaultRules([]string{"br0"})
	processRules("KEEN_RELAY", templates, testParams("br0"))

	if !strings.Contains(strings.Join(templates[0].Rule, " "), "{{interface}}") {
		t.Errorf("Template was modified: %v", templates[0].Rule)
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Proxy: &config.ProxyConfig{
			Listeners: []*config.ListenerConfig{
				{Type: config.ListenerSOCKS5, Address: "127.0.0.1:1080"},
				{Type: config.ListenerRedirect, Address: "0.0.0.0:12345"},
			},
		},
		Redirect: &config.RedirectConfig{Enable: true, Interfaces: []string{"br0"}},
	}

	params, err := ParamsFromConfig(cfg)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if params.RedirectPort != 12345 {
		t.Errorf("Expected redirect port 12345, got %d", params.RedirectPort)
	}
	if params.DNSAddress.String() != "10.77.0.2" {
		t.Errorf("Expected DNS address 10.77.0.2, got %s", params.DNSAddress)
	}
	if params.DNSPort != 53 {
		t.Errorf("Expected DNS port 53, got %d", params.DNSPort)
	}
	if params.FakeRange.String() != config.DefaultFakeIPRange {
		t.Errorf("Expected fake range %s, got %s", config.DefaultFakeIPRange, params.FakeRange)
	}
	if len(params.Interfaces) != 1 || params.Interfaces[0] != "br0" {
		t.Errorf("Expected interfaces [br0], got %v", params.Interfaces)
	}
}

func TestParamsFromConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		address string
	}{
		{"Missing port", "0.0.0.0"},
		{"Zero port", "0.0.0.0:0"},
		{"Bad port", "0.0.0.0:http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Proxy: &config.ProxyConfig{
				Listeners: []*config.ListenerConfig{{Type: config.ListenerRedirect, Address: tt.address}},
			}}
			if _, err := ParamsFromConfig(cfg); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}

	if _, err := ParamsFromConfig(&config.Config{}); err == nil {
		t.Error("Expected error without redirect listener")
	}
}

func TestRulesFromConfig(t *testing.T) {
	cfg := &config.Config{
		Proxy: &config.ProxyConfig{
			Listeners: []*config.ListenerConfig{{Type: config.ListenerRedirect, Address: "0.0.0.0:12345"}},
		},
		Redirect: &config.RedirectConfig{Enable: true, Interfaces: []string{"br0"}},
	}

	rules, err := RulesFromConfig(cfg)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("Expected 2 rules, got %d", len(rules))
	}
	if want := "-i br0 -p udp --dport 53 -j DNAT --to-destination 10.77.0.2:53"; rules[0].String() != want {
		t.Errorf("Expected %q, got %q", want, rules[0].String())
	}
	if rules[1].Chain != config.DefaultRedirectChain || rules[1].Interface != "br0" {
		t.Errorf("Unexpected rule %+v", rules[1])
	}

	cfg.Redirect.IPTablesRules = []*config.IPTablesRule{{Rule: []string{"-p", "tcp", "-j", "REDIRECT", "--to-ports", "{{redirect_port}}"}}}
	rules, err = RulesFromConfig(cfg)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if len(rules) != 1 || rules[0].String() != "-p tcp -j REDIRECT --to-ports 12345" {
		t.Errorf("Unexpected custom rules %v", rules)
	}
}
