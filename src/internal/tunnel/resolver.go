package tunnel

import (
	"context"
	"net"
	"net/netip"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// LookupFunc resolves host to its addresses. net.DefaultResolver.LookupNetIP
// has this shape.
type LookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// CachingResolver is a HostResolver that keeps successful lookups for a
// while. Failures are not cached.
type CachingResolver struct {
	lookup  LookupFunc
	timeout time.Duration
	cache   *cache.Cache
}

var _ HostResolver = (*CachingResolver)(nil)

// NewCachingResolver creates a resolver. A nil lookup uses the system
// resolver.
func NewCachingResolver(lookup LookupFunc, timeout, ttl time.Duration) *CachingResolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupNetIP
	}
	return &CachingResolver{
		lookup:  lookup,
		timeout: timeout,
		cache:   cache.New(ttl, ttl*2),
	}
}

// Resolve implements HostResolver. Cached answers are returned on the
// calling goroutine, fresh lookups on their own.
func (r *CachingResolver) Resolve(host string, done func(ip string)) {
	if cached, found := r.cache.Get(host); found {
		done(cached.(string))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		addrs, err := r.lookup(ctx, "ip4", host)
		if err != nil {
			log.Debugf("Failed to resolve %s: %v", host, err)
			done("")
			return
		}
		for _, addr := range addrs {
			if addr = addr.Unmap(); addr.Is4() {
				ip := addr.String()
				r.cache.SetDefault(host, ip)
				done(ip)
				return
			}
		}
		log.Debugf("No IPv4 address for %s", host)
		done("")
	}()
}

// Flush drops every cached answer.
func (r *CachingResolver) Flush() {
	r.cache.Flush()
}
