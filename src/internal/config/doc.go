// Package config handles configuration file parsing and validation for keen-relay.
//
// The configuration is a TOML file with these sections:
//   - [general]: API bind address and GeoIP database path
//   - [tun]: virtual interface the DNS engine reads packets from
//   - [dns]: server address, fake-IP range and TTL, upstream resolvers
//   - [proxy]: tunnel relay tuning and [[proxy.listener]] entries
//   - [[adapter]]: named upstream connection methods
//   - [[rule]]: ordered routing rules, each choosing an adapter and a DNS mode
//   - [redirect]: iptables rules steering DNS and fake-IP traffic to keen-relay
//
// Unset values are filled in by the Get* accessors, so callers never read
// the raw fields directly.
//
//	cfg, err := config.LoadConfig("/opt/etc/keen-relay/keen-relay.toml")
//	if err != nil {
//	    log.Fatalf("%v", err)
//	}
//	if err := cfg.ValidateConfig(); err != nil {
//	    log.Fatalf("%v", err)
//	}
package config
