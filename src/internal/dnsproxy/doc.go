// Package dnsproxy implements the fake-IP DNS engine.
//
// Server receives raw IPv4/UDP packets addressed to the configured DNS
// address, parses the query and either answers an A query with an address
// from the fake pool or forwards it to every registered upstream resolver.
// The first upstream answer for a transaction wins; later ones are dropped.
//
// Two tables live on the engine's executor:
//   - pending queries keyed by transaction ID, dropped after PendingLifetime
//   - fake mappings keyed by fake address, released after twice the fake TTL
//
// LookupFakeIP lets the tunnel layer turn a fake destination back into the
// domain it was handed out for. Upstream resolvers live in the upstreams
// subpackage.
package dnsproxy
