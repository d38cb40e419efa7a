package networking

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/coreos/go-iptables/iptables"
	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/valyala/fasttemplate"
)

const (
	natTable        = "nat"
	preroutingChain = "PREROUTING"
)

// IPTables is the subset of *iptables.IPTables used by the redirect
// components.
type IPTables interface {
	ChainExists(table, chain string) (bool, error)
	NewChain(table, chain string) error
	ClearChain(table, chain string) error
	DeleteChain(table, chain string) error
	Exists(table, chain string, rulespec ...string) (bool, error)
	Append(table, chain string, rulespec ...string) error
	InsertUnique(table, chain string, pos int, rulespec ...string) error
	DeleteIfExists(table, chain string, rulespec ...string) error
}

var _ IPTables = (*iptables.IPTables)(nil)

// RedirectParams are the values substituted into rule templates.
type RedirectParams struct {
	DNSAddress   netip.Addr
	DNSPort      uint16
	FakeRange    netip.Prefix
	RedirectPort uint16
	Interfaces   []string
}

// ParamsFromConfig collects the template values from the application config.
func ParamsFromConfig(cfg *config.Config) (RedirectParams, error) {
	params := RedirectParams{
		DNSAddress: cfg.GetDNSServerAddress(),
		DNSPort:    cfg.GetDNSServerPort(),
		FakeRange:  cfg.GetFakeIPRange(),
	}
	if cfg.Redirect != nil {
		params.Interfaces = cfg.Redirect.Interfaces
	}

	listener := cfg.GetRedirectListener()
	if listener == nil {
		return params, fmt.Errorf("no redirect listener configured")
	}
	_, port, err := net.SplitHostPort(listener.Address)
	if err != nil {
		return params, fmt.Errorf("invalid redirect listener address %q: %w", listener.Address, err)
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return params, fmt.Errorf("invalid redirect listener port %q", port)
	}
	params.RedirectPort = uint16(p)

	return params, nil
}

// RedirectRule is a rendered rule inside the redirect chain.
type RedirectRule struct {
	Chain     string
	Rule      []string
	Interface string
}

func (r *RedirectRule) String() string {
	return strings.Join(r.Rule, " ")
}

// DefaultRules returns the rule templates used when none are configured.
func DefaultRules(interfaces []string) []*config.IPTablesRule {
	dns := []string{"-p", "udp", "--dport", "53", "-j", "DNAT", "--to-destination", "{{" + config.IPTABLES_TMPL_DNS_ADDRESS + "}}:{{" + config.IPTABLES_TMPL_DNS_PORT + "}}"}
	tcp := []string{"-p", "tcp", "-d", "{{" + config.IPTABLES_TMPL_FAKE_RANGE + "}}", "-j", "REDIRECT", "--to-ports", "{{" + config.IPTABLES_TMPL_REDIRECT_PORT + "}}"}

	if len(interfaces) > 0 {
		iface := []string{"-i", "{{" + config.IPTABLES_TMPL_INTERFACE + "}}"}
		dns = append(append([]string{}, iface...), dns...)
		tcp = append(append([]string{}, iface...), tcp...)
	}

	return []*config.IPTablesRule{{Rule: dns}, {Rule: tcp}}
}

// RulesFromConfig renders the redirect rules cfg would install, without
// touching iptables.
func RulesFromConfig(cfg *config.Config) ([]*RedirectRule, error) {
	params, err := ParamsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return processRules(cfg.GetRedirectChain(), templatesFromConfig(cfg, params), params), nil
}

func templatesFromConfig(cfg *config.Config, params RedirectParams) []*config.IPTablesRule {
	if cfg.Redirect != nil && len(cfg.Redirect.IPTablesRules) > 0 {
		return cfg.Redirect.IPTablesRules
	}
	return DefaultRules(params.Interfaces)
}

// processRules renders rule templates. A rule that uses {{interface}} is
// emitted once per interface and dropped when there are none.
func processRules(chain string, templates []*config.IPTablesRule, params RedirectParams) []*RedirectRule {
	var rules []*RedirectRule

	for _, tmpl := range templates {
		if !usesInterface(tmpl) {
			rules = append(rules, renderRule(chain, tmpl, params, ""))
			continue
		}
		for _, iface := range params.Interfaces {
			rules = append(rules, renderRule(chain, tmpl, params, iface))
		}
	}

	return rules
}

func usesInterface(rule *config.IPTablesRule) bool {
	for _, part := range rule.Rule {
		if strings.Contains(part, "{{"+config.IPTABLES_TMPL_INTERFACE+"}}") {
			return true
		}
	}
	return false
}

func renderRule(chain string, tmpl *config.IPTablesRule, params RedirectParams, iface string) *RedirectRule {
	specs := make([]string, len(tmpl.Rule))
	for i, part := range tmpl.Rule {
		specs[i] = processRulePart(part, params, iface)
	}
	return &RedirectRule{Chain: chain, Rule: specs, Interface: iface}
}

func processRulePart(template string, params RedirectParams, iface string) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	t := fasttemplate.New(template, "{{", "}}")
	return t.ExecuteString(map[string]interface{}{
		config.IPTABLES_TMPL_DNS_ADDRESS:   params.DNSAddress.String(),
		config.IPTABLES_TMPL_DNS_PORT:      strconv.FormatUint(uint64(params.DNSPort), 10),
		config.IPTABLES_TMPL_FAKE_RANGE:    params.FakeRange.String(),
		config.IPTABLES_TMPL_REDIRECT_PORT: strconv.FormatUint(uint64(params.RedirectPort), 10),
		config.IPTABLES_TMPL_INTERFACE:     iface,
	})
}
