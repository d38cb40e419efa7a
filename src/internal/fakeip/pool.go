// Package fakeip allocates synthetic IPv4 addresses from a reserved range.
package fakeip

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/maksimkurb/keen-relay/src/internal/packet"
	"github.com/maksimkurb/keen-relay/src/internal/utils"
)

// Pool hands out host addresses of a prefix in sequence, wrapping around
// once the end is reached and skipping addresses still in use. The network
// and broadcast addresses are never returned.
//
// Pool is safe for concurrent use.
type Pool struct {
	prefix netip.Prefix
	first  uint32
	size   int

	mu     sync.Mutex
	used   utils.BitSet
	cursor int
}

// NewPool creates a pool over prefix. The prefix must be IPv4 and hold at
// least two host addresses.
func NewPool(prefix netip.Prefix) (*Pool, error) {
	network, broadcast, err := utils.IPv4PrefixBounds(prefix)
	if err != nil {
		return nil, err
	}
	if broadcast-network < 3 {
		return nil, fmt.Errorf("fake IP range %s is too small", prefix)
	}

	size := int(broadcast - network - 1)
	return &Pool{
		prefix: prefix.Masked(),
		first:  network + 1,
		size:   size,
		used:   utils.NewBitSet(size),
	}, nil
}

// Prefix returns the masked prefix addresses are drawn from.
func (p *Pool) Prefix() netip.Prefix {
	return p.prefix
}

// Allocate returns the next free address. It reports false when the pool
// is exhausted.
func (p *Pool) Allocate() (packet.Address, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.used.NextClear(p.cursor)
	if idx < 0 {
		return 0, false
	}
	p.used.Add(idx)
	p.cursor = (idx + 1) % p.size
	return packet.Address(p.first + uint32(idx)), true
}

// Release returns addr to the pool. Releasing an address that is not
// allocated, or that lies outside the pool, is a no-op.
func (p *Pool) Release(addr packet.Address) {
	idx, ok := p.index(addr)
	if !ok {
		return
	}

	p.mu.Lock()
	p.used.Remove(idx)
	p.mu.Unlock()
}

// Contains reports whether addr belongs to the pool's range, allocated or not.
func (p *Pool) Contains(addr packet.Address) bool {
	return p.prefix.Contains(addr.Netip())
}

// IsAllocated reports whether addr is currently handed out.
func (p *Pool) IsAllocated(addr packet.Address) bool {
	idx, ok := p.index(addr)
	if !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used.Has(idx)
}

// Used returns the number of allocated addresses.
func (p *Pool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used.Count()
}

// Size returns the number of allocatable addresses.
func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) index(addr packet.Address) (int, bool) {
	v := uint32(addr)
	if v < p.first || v >= p.first+uint32(p.size) {
		return 0, false
	}
	return int(v - p.first), true
}
