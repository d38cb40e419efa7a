// Package networking installs the iptables rules that steer LAN traffic
// into keen-relay.
//
// All rules live in a dedicated nat chain (KEEN_RELAY by default) that is
// linked from PREROUTING, so removing the chain removes every rule at once.
//
// # Components
//
// Every rule is a NetworkingComponent that can be checked, created and
// deleted on its own:
//
//   - RedirectChainComponent: the chain and its PREROUTING jump
//   - RedirectRuleComponent: one rendered rule inside the chain
//
// The default rules DNAT client DNS queries to the fake-IP DNS server and
// REDIRECT TCP connections towards the fake range to the redirect listener.
// Custom rules use the same template variables:
//
//	{{dns_address}}  {{dns_port}}  {{fake_range}}  {{redirect_port}}  {{interface}}
//
// Rules that mention {{interface}} are rendered once per configured
// interface.
//
// # Example Usage
//
//	mgr, err := networking.NewRedirectManager(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := mgr.Enable(); err != nil {
//	    return err
//	}
//	defer mgr.Disable()
package networking
