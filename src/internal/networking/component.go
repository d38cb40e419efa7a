package networking

// ComponentType identifies the type of networking component
type ComponentType string

const (
	ComponentTypeChain    ComponentType = "iptables_chain"
	ComponentTypeIPTables ComponentType = "iptables"
)

// NetworkingComponent represents any network configuration element.
// Enable, disable and self-check all go through this interface.
type NetworkingComponent interface {
	// IsExists checks if the component currently exists in the system
	IsExists() (bool, error)

	// ShouldExist determines if this component should be present
	// based on current system state (e.g., interface availability)
	ShouldExist() bool

	// CreateIfNotExists creates the component if it doesn't exist
	CreateIfNotExists() error

	// DeleteIfExists removes the component if it exists
	DeleteIfExists() error

	// GetType returns the component type for categorization
	GetType() ComponentType

	// GetChain returns the iptables chain the component belongs to
	GetChain() string

	// GetDescription returns human-readable description
	GetDescription() string

	// GetCommand returns the CLI command for manual execution (debugging)
	GetCommand() string
}
