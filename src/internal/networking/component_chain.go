package networking

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"
	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// RedirectChainComponent manages the redirect chain and its jump from
// PREROUTING.
type RedirectChainComponent struct {
	ComponentBase
	ipt IPTables
}

// NewRedirectChainComponent creates the component for chain.
func NewRedirectChainComponent(ipt IPTables, chain string) *RedirectChainComponent {
	return &RedirectChainComponent{
		ComponentBase: ComponentBase{
			chain:         chain,
			componentType: ComponentTypeChain,
			description:   fmt.Sprintf("nat chain %s linked from %s", chain, preroutingChain),
		},
		ipt: ipt,
	}
}

// IsExists reports whether the chain exists and is linked from PREROUTING.
func (c *RedirectChainComponent) IsExists() (bool, error) {
	exists, err := c.ipt.ChainExists(natTable, c.chain)
	if err != nil || !exists {
		return false, err
	}
	return c.ipt.Exists(natTable, preroutingChain, c.jump()...)
}

// ShouldExist always returns true: the manager only builds the component
// when redirection is enabled.
func (c *RedirectChainComponent) ShouldExist() bool {
	return true
}

// CreateIfNotExists creates the chain and links it as the first PREROUTING
// rule.
func (c *RedirectChainComponent) CreateIfNotExists() error {
	if err := c.ipt.NewChain(natTable, c.chain); err != nil {
		// Exit status 1 means the chain already exists.
		if eerr, ok := err.(*iptables.Error); !(ok && eerr.ExitStatus() == 1) {
			return fmt.Errorf("failed to create chain %s: %w", c.chain, err)
		}
	}

	if err := c.ipt.InsertUnique(natTable, preroutingChain, 1, c.jump()...); err != nil {
		return fmt.Errorf("failed to link chain %s: %w", c.chain, err)
	}
	return nil
}

// DeleteIfExists unlinks, flushes and removes the chain. Missing pieces are
// skipped.
func (c *RedirectChainComponent) DeleteIfExists() error {
	if err := c.ipt.DeleteIfExists(natTable, preroutingChain, c.jump()...); err != nil {
		log.Debugf("Failed to unlink chain %s: %v", c.chain, err)
	}

	exists, err := c.ipt.ChainExists(natTable, c.chain)
	if err != nil {
		return fmt.Errorf("failed to check chain %s: %w", c.chain, err)
	}
	if !exists {
		return nil
	}

	if err := c.ipt.ClearChain(natTable, c.chain); err != nil {
		return fmt.Errorf("failed to clear chain %s: %w", c.chain, err)
	}
	if err := c.ipt.DeleteChain(natTable, c.chain); err != nil {
		return fmt.Errorf("failed to delete chain %s: %w", c.chain, err)
	}
	return nil
}

// GetCommand returns the CLI command for manual execution.
func (c *RedirectChainComponent) GetCommand() string {
	return fmt.Sprintf("iptables -t %s -N %s && iptables -t %s -I %s 1 -j %s", natTable, c.chain, natTable, preroutingChain, c.chain)
}

func (c *RedirectChainComponent) jump() []string {
	return []string{"-j", c.chain}
}
