// Package upstreams provides the DNS resolvers queries are forwarded to.
//
// Resolvers are fire-and-forget: Resolve queues the raw query and returns,
// answers are handed to the engine's ResponseHandler from the resolver's
// own goroutines.
package upstreams

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/dnsproxy"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

// BaseResolver provides the domain restriction and handler plumbing shared
// by all resolvers.
type BaseResolver struct {
	// Domain restricts this resolver to a specific domain and its subdomains.
	// Empty string means this resolver can be used for any domain.
	Domain string

	mu      sync.RWMutex
	handler dnsproxy.ResponseHandler
}

// GetDomain returns the domain this resolver is restricted to.
func (b *BaseResolver) GetDomain() string {
	return b.Domain
}

// MatchesDomain returns true if this resolver should handle the given domain.
func (b *BaseResolver) MatchesDomain(queryDomain string) bool {
	if b.Domain == "" {
		return true
	}
	matches, _ := utils.MatchDomain(queryDomain, b.Domain)
	return matches
}

// SetHandler implements dnsproxy.Resolver.
func (b *BaseResolver) SetHandler(h dnsproxy.ResponseHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *BaseResolver) deliver(raw []byte) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h != nil {
		h.HandleResponse(raw)
	}
}

func (b *BaseResolver) suffix() string {
	if b.Domain == "" {
		return ""
	}
	return "?domain=" + b.Domain
}

// Options tunes resolvers created by ParseResolver.
type Options struct {
	// UDPIdleTimeout closes UDP sockets without traffic, 0 keeps them open.
	UDPIdleTimeout time.Duration
}

// ParseResolver creates a resolver from an upstream URL.
// Supported formats:
//   - udp://ip:port - plain UDP DNS (port defaults to 53)
//   - doh://host/path - DNS-over-HTTPS
//
// A "domain" query parameter restricts the resolver to that domain and its
// subdomains, e.g. udp://10.0.0.53:53?domain=corp.example.
func ParseResolver(upstreamURL string, opts Options) (dnsproxy.Resolver, error) {
	u, err := url.Parse(upstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %s: %w", upstreamURL, err)
	}
	domain := u.Query().Get("domain")

	switch u.Scheme {
	case "udp":
		return NewUDPResolver(u.Host, domain, opts.UDPIdleTimeout)
	case "doh", "https":
		u.RawQuery = ""
		return NewDoHResolver(strings.Replace(u.String(), "doh://", httpsScheme, 1), domain), nil
	default:
		return nil, fmt.Errorf("unsupported upstream scheme: %s", u.Scheme)
	}
}
