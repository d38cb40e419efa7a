package networking

// ComponentBase provides common fields for all networking components.
//
//	type RedirectRuleComponent struct {
//	    ComponentBase  // Provides GetChain, GetType, GetDescription
//	    rule *RedirectRule
//	}
type ComponentBase struct {
	chain         string
	componentType ComponentType
	description   string
}

// GetChain returns the iptables chain of the component
func (c *ComponentBase) GetChain() string {
	return c.chain
}

// GetType returns the component type for categorization and filtering
func (c *ComponentBase) GetType() ComponentType {
	return c.componentType
}

// GetDescription returns a human-readable description of the component
func (c *ComponentBase) GetDescription() string {
	return c.description
}
