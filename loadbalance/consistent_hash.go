package loadbalance

import (
	"fmt"
	"hash/crc32"
	"slices"
	"sort"
	"strings"
	"sync"

	"display-rpc/registry"
)

// ConsistentHashBalancer maps keys to endpoints using a hash ring.
// The same key always maps to the same endpoint (until the ring changes), so an
// application that reconnects with its own id as Key lands on the server that
// still holds its surfaces.
//
// Virtual nodes: each real endpoint is mapped to N virtual nodes on the ring.
// 100 virtual nodes per endpoint keeps the distribution even.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	Key string // used by Pick

	replicas int
	mu       sync.Mutex
	ring     []uint32                      // Sorted hash values on the ring
	nodes    map[uint32]*registry.Endpoint // Hash value → endpoint
	members  string                        // endpoint set the ring was built from
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per
// endpoint that Picks by key.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		Key:      key,
		replicas: 100,
		nodes:    make(map[uint32]*registry.Endpoint),
	}
}

// Add places an endpoint onto the hash ring with N virtual nodes.
func (b *ConsistentHashBalancer) Add(ep *registry.Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.add(ep)
	b.members = ""
}

func (b *ConsistentHashBalancer) add(ep *registry.Endpoint) {
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", ep.SocketPath, i)))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = ep
	}
	slices.Sort(b.ring)
}

// PickKey finds the endpoint responsible for key.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pick(key)
}

func (b *ConsistentHashBalancer) pick(key string) (*registry.Endpoint, error) {
	if len(b.ring) == 0 {
		return nil, ErrNoEndpoints
	}
	hash := crc32.ChecksumIEEE([]byte(key))

	// Binary search: find first node with hash >= key's hash
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	// Wrap around: if key's hash > all nodes, go to the first node
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

// Pick rebuilds the ring when the endpoint set changed, then picks by b.Key.
func (b *ConsistentHashBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	paths := make([]string, len(endpoints))
	for i, ep := range endpoints {
		paths[i] = ep.SocketPath
	}
	slices.Sort(paths)
	members := strings.Join(paths, "\x00")

	b.mu.Lock()
	defer b.mu.Unlock()
	if members != b.members {
		b.ring = b.ring[:0]
		clear(b.nodes)
		for i := range endpoints {
			ep := endpoints[i]
			b.add(&ep)
		}
		b.members = members
	}
	return b.pick(b.Key)
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
