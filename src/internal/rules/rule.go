package rules

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/gobwas/glob"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

// Rule is one compiled policy entry.
type Rule struct {
	Index   int
	Type    string
	Adapter string
	Fake    bool

	exactDomains     map[string]struct{}
	wildcardSuffixes map[string]struct{}
	keywords         []string
	globs            []glob.Glob
	prefixes         []netip.Prefix
	countries        map[string]struct{}

	desc string
}

func newRule(index int, cfg *config.RuleConfig) (*Rule, error) {
	r := &Rule{
		Index:   index,
		Type:    cfg.Type,
		Adapter: cfg.Adapter,
		Fake:    cfg.IsFakeDNS(),
		desc:    cfg.String(),
	}

	switch cfg.Type {
	case config.RuleDomain, config.RuleDomainSuffix:
		r.exactDomains = make(map[string]struct{})
		r.wildcardSuffixes = make(map[string]struct{})
		for _, v := range cfg.Values {
			r.addDomain(v, cfg.Type == config.RuleDomainSuffix)
		}
	case config.RuleDomainKeyword:
		for _, v := range cfg.Values {
			r.keywords = append(r.keywords, strings.ToLower(v))
		}
	case config.RuleDomainGlob:
		for _, v := range cfg.Values {
			g, err := glob.Compile(strings.ToLower(v), '.')
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern %s: %w", v, err)
			}
			r.globs = append(r.globs, g)
		}
	case config.RuleIPCIDR:
		for _, v := range cfg.Values {
			prefix, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %s: %w", v, err)
			}
			r.prefixes = append(r.prefixes, prefix.Masked())
		}
	case config.RuleGeoIP:
		r.countries = make(map[string]struct{})
		for _, v := range cfg.Values {
			r.countries[strings.ToUpper(v)] = struct{}{}
		}
	case config.RuleFinal:
	default:
		return nil, fmt.Errorf("unsupported rule type: %s", cfg.Type)
	}
	return r, nil
}

// addDomain registers a domain. "*.example.com" and suffix rules match the
// domain itself and every subdomain.
func (r *Rule) addDomain(domain string, suffix bool) {
	domain = utils.NormalizeDomain(strings.TrimSpace(domain))
	if strings.HasPrefix(domain, "*.") {
		domain = domain[2:]
		suffix = true
	}
	if domain == "" {
		return
	}
	r.exactDomains[domain] = struct{}{}
	if suffix {
		r.wildcardSuffixes[domain] = struct{}{}
	}
}

// IsAddressRule reports whether the rule needs a resolved address.
func (r *Rule) IsAddressRule() bool {
	return r.Type == config.RuleIPCIDR || r.Type == config.RuleGeoIP
}

// IsFinal reports whether the rule matches everything.
func (r *Rule) IsFinal() bool {
	return r.Type == config.RuleFinal
}

// MatchDomain reports whether domain matches a domain rule. Address rules
// never match here.
func (r *Rule) MatchDomain(domain string) bool {
	if r.IsFinal() {
		return true
	}
	domain = utils.NormalizeDomain(domain)
	if domain == "" {
		return false
	}

	switch r.Type {
	case config.RuleDomain, config.RuleDomainSuffix:
		if _, ok := r.exactDomains[domain]; ok {
			return true
		}
		// For "a.b.example.com" check "b.example.com", "example.com", "com".
		for i := strings.IndexByte(domain, '.'); i >= 0; {
			suffix := domain[i+1:]
			if _, ok := r.wildcardSuffixes[suffix]; ok {
				return true
			}
			next := strings.IndexByte(suffix, '.')
			if next < 0 {
				break
			}
			i += next + 1
		}
	case config.RuleDomainKeyword:
		for _, k := range r.keywords {
			if strings.Contains(domain, k) {
				return true
			}
		}
	case config.RuleDomainGlob:
		for _, g := range r.globs {
			if g.Match(domain) {
				return true
			}
		}
	}
	return false
}

// MatchAddress reports whether addr matches an address rule. country is
// only consulted by geoip rules and may be empty.
func (r *Rule) MatchAddress(addr netip.Addr, country string) bool {
	if r.IsFinal() {
		return true
	}
	if !addr.IsValid() {
		return false
	}

	switch r.Type {
	case config.RuleIPCIDR:
		addr = addr.Unmap()
		for _, p := range r.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
	case config.RuleGeoIP:
		if country == "" {
			return false
		}
		_, ok := r.countries[strings.ToUpper(country)]
		return ok
	}
	return false
}

func (r *Rule) String() string {
	return fmt.Sprintf("#%d %s", r.Index, r.desc)
}
