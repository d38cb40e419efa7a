package networking

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"
	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// RedirectManager is the facade over the redirect chain and its rules.
type RedirectManager struct {
	chain *RedirectChainComponent
	rules []*RedirectRuleComponent
}

// ComponentStatus is the result of checking one component.
type ComponentStatus struct {
	Type        ComponentType `json:"type"`
	Chain       string        `json:"chain"`
	Description string        `json:"description"`
	Command     string        `json:"command"`
	Exists      bool          `json:"exists"`
	ShouldExist bool          `json:"should_exist"`
}

// OK reports whether the component is in the state it should be in.
func (s ComponentStatus) OK() bool {
	return s.Exists == s.ShouldExist
}

// NewRedirectManager builds the manager for cfg using the system iptables.
func NewRedirectManager(cfg *config.Config) (*RedirectManager, error) {
	ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("failed to create iptables (IPv4): %w", err)
	}

	params, err := ParamsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return NewRedirectManagerWith(ipt, cfg.GetRedirectChain(), templatesFromConfig(cfg, params), params, LinkExists), nil
}

// NewChainManager builds a manager that only knows the chain. It needs no
// listener or DNS settings and is enough for Disable.
func NewChainManager(chain string) (*RedirectManager, error) {
	ipt, err := iptables.NewWithProtocol(iptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("failed to create iptables (IPv4): %w", err)
	}
	return &RedirectManager{chain: NewRedirectChainComponent(ipt, chain)}, nil
}

// NewRedirectManagerWith builds the manager on top of ipt. Empty templates
// select DefaultRules.
func NewRedirectManagerWith(ipt IPTables, chain string, templates []*config.IPTablesRule, params RedirectParams, linkExists func(string) bool) *RedirectManager {
	if len(templates) == 0 {
		templates = DefaultRules(params.Interfaces)
	}

	m := &RedirectManager{chain: NewRedirectChainComponent(ipt, chain)}
	for _, rule := range processRules(chain, templates, params) {
		m.rules = append(m.rules, NewRedirectRuleComponent(ipt, rule, linkExists))
	}
	return m
}

// Components returns the chain followed by its rules.
func (m *RedirectManager) Components() []NetworkingComponent {
	components := []NetworkingComponent{m.chain}
	for _, rule := range m.rules {
		components = append(components, rule)
	}
	return components
}

// Enable creates the chain and every rule that should exist.
func (m *RedirectManager) Enable() error {
	log.Infof("Installing redirect rules in chain %s...", m.chain.GetChain())

	if err := m.chain.CreateIfNotExists(); err != nil {
		return err
	}

	for _, rule := range m.rules {
		if !rule.ShouldExist() {
			log.Warnf("Skipping rule [%s]: interface %s is not present", rule.GetRule(), rule.GetRule().Interface)
			continue
		}
		log.Debugf("Adding iptables rule [%s]", rule.GetRule())
		if err := rule.CreateIfNotExists(); err != nil {
			return err
		}
	}

	return nil
}

// Disable removes the chain together with all of its rules.
func (m *RedirectManager) Disable() error {
	log.Infof("Removing redirect chain %s...", m.chain.GetChain())
	return m.chain.DeleteIfExists()
}

// Check reports the state of every component.
func (m *RedirectManager) Check() ([]ComponentStatus, error) {
	var statuses []ComponentStatus

	for _, component := range m.Components() {
		exists, err := component.IsExists()
		if err != nil {
			log.Errorf("Checking %s [%s] failed: %v", component.GetType(), component.GetCommand(), err)
			return nil, err
		}
		statuses = append(statuses, ComponentStatus{
			Type:        component.GetType(),
			Chain:       component.GetChain(),
			Description: component.GetDescription(),
			Command:     component.GetCommand(),
			Exists:      exists,
			ShouldExist: component.ShouldExist(),
		})
	}

	return statuses, nil
}
