package networking

import (
	"fmt"
	"strings"
)

// RedirectRuleComponent wraps a single rule of the redirect chain.
type RedirectRuleComponent struct {
	ComponentBase
	ipt        IPTables
	rule       *RedirectRule
	linkExists func(name string) bool
}

// NewRedirectRuleComponent creates the component for rule. linkExists is
// consulted for rules bound to an interface; nil means every interface is
// assumed present.
func NewRedirectRuleComponent(ipt IPTables, rule *RedirectRule, linkExists func(string) bool) *RedirectRuleComponent {
	description := "iptables rule redirects client traffic into keen-relay"
	if rule.Interface != "" {
		description = fmt.Sprintf("iptables rule redirects traffic from %s into keen-relay", rule.Interface)
	}

	return &RedirectRuleComponent{
		ComponentBase: ComponentBase{
			chain:         rule.Chain,
			componentType: ComponentTypeIPTables,
			description:   description,
		},
		ipt:        ipt,
		rule:       rule,
		linkExists: linkExists,
	}
}

// IsExists checks if the rule is present in the chain. A missing chain
// counts as a missing rule.
func (c *RedirectRuleComponent) IsExists() (bool, error) {
	chainExists, err := c.ipt.ChainExists(natTable, c.chain)
	if err != nil || !chainExists {
		return false, err
	}
	return c.ipt.Exists(natTable, c.chain, c.rule.Rule...)
}

// ShouldExist returns false for interface-bound rules whose interface is
// not present.
func (c *RedirectRuleComponent) ShouldExist() bool {
	if c.rule.Interface == "" || c.linkExists == nil {
		return true
	}
	return c.linkExists(c.rule.Interface)
}

// CreateIfNotExists appends the rule if it is not already in the chain.
func (c *RedirectRuleComponent) CreateIfNotExists() error {
	exists, err := c.IsExists()
	if err != nil {
		return fmt.Errorf("failed to check if iptables rule exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.ipt.Append(natTable, c.chain, c.rule.Rule...); err != nil {
		return fmt.Errorf("failed to add iptables rule [%s]: %w", c.rule, err)
	}
	return nil
}

// DeleteIfExists removes the rule if it is in the chain.
func (c *RedirectRuleComponent) DeleteIfExists() error {
	exists, err := c.IsExists()
	if err != nil {
		return fmt.Errorf("failed to check if iptables rule exists: %w", err)
	}
	if !exists {
		return nil
	}

	if err := c.ipt.DeleteIfExists(natTable, c.chain, c.rule.Rule...); err != nil {
		return fmt.Errorf("failed to delete iptables rule [%s]: %w", c.rule, err)
	}
	return nil
}

// GetCommand returns the CLI command for manual execution.
func (c *RedirectRuleComponent) GetCommand() string {
	return fmt.Sprintf("iptables -t %s -A %s %s", natTable, c.chain, strings.Join(c.rule.Rule, " "))
}

// GetRule returns the rendered rule.
func (c *RedirectRuleComponent) GetRule() *RedirectRule {
	return c.rule
}
