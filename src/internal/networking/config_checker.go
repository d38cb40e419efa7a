package networking

import (
	"fmt"

	"github.com/maksimkurb/keen-relay/src/internal/config"
	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// ValidateInterfacesArePresent checks that every redirect interface exists.
// It fails only when interfaces are configured and none of them is present.
func ValidateInterfacesArePresent(c *config.Config, interfaces []Interface) error {
	if c.Redirect == nil || len(c.Redirect.Interfaces) == 0 {
		return nil
	}

	hasValidInterface := false
	for _, interfaceName := range c.Redirect.Interfaces {
		if err := validateInterfaceExists(interfaceName, interfaces); err != nil {
			log.Errorf("Redirect interface '%s' does not exist", interfaceName)
		} else {
			hasValidInterface = true
		}
	}

	if !hasValidInterface {
		return fmt.Errorf("redirect has no valid interfaces available")
	}
	return nil
}

func PrintMissingInterfacesHelp() {
	log.Warnf("(tip) Please enter command `ip link` to show available interfaces list")
}

func validateInterfaceExists(interfaceName string, interfaces []Interface) error {
	for _, iface := range interfaces {
		if iface.Attrs().Name == interfaceName {
			return nil
		}
	}
	return fmt.Errorf("interface '%s' is not exists", interfaceName)
}
