package dsa

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// HashRingConfig configures a consistent hash ring.
type HashRingConfig struct {
	// VirtualNodes is the number of points each physical node occupies on
	// the ring. More virtual nodes smooth the key distribution at the cost
	// of larger Lookup tables.
	VirtualNodes int
}

// DefaultHashRingConfig uses 150 virtual nodes per physical node, the
// standard libketama-style figure that keeps distribution skew small even
// with only a handful of nodes.
func DefaultHashRingConfig() HashRingConfig {
	return HashRingConfig{VirtualNodes: 150}
}

// HashRing is a consistent hash ring used for ground-station affinity
// (spec.md §12: prefer a different ground station on retry than the one
// that just failed) and for sharding process-wide tables across buckets.
// Safe for concurrent use.
type HashRing struct {
	mu       sync.RWMutex
	cfg      HashRingConfig
	ring     map[uint32]string // hash -> physical node
	sorted   []uint32
	nodes    map[string]bool
}

// NewHashRing creates an empty hash ring.
func NewHashRing(cfg HashRingConfig) *HashRing {
	if cfg.VirtualNodes <= 0 {
		cfg.VirtualNodes = 150
	}
	return &HashRing{
		cfg:   cfg,
		ring:  make(map[uint32]string),
		nodes: make(map[string]bool),
	}
}

func hashKey(s string) uint32 {
	sum := sha1.Sum([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// AddNode adds a physical node to the ring. A duplicate add is a no-op.
func (r *HashRing) AddNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nodes[node] {
		return
	}
	r.nodes[node] = true
	for i := 0; i < r.cfg.VirtualNodes; i++ {
		h := hashKey(fmt.Sprintf("%s#%d", node, i))
		r.ring[h] = node
	}
	r.rebuildSorted()
}

// RemoveNode removes a physical node and all of its virtual points.
func (r *HashRing) RemoveNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.nodes[node] {
		return
	}
	delete(r.nodes, node)
	for i := 0; i < r.cfg.VirtualNodes; i++ {
		h := hashKey(fmt.Sprintf("%s#%d", node, i))
		delete(r.ring, h)
	}
	r.rebuildSorted()
}

func (r *HashRing) rebuildSorted() {
	sorted := make([]uint32, 0, len(r.ring))
	for h := range r.ring {
		sorted = append(sorted, h)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	r.sorted = sorted
}

// Size returns the number of physical nodes on the ring.
func (r *HashRing) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Nodes returns the physical node names, sorted.
func (r *HashRing) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the node owning key, or "" if the ring is empty.
func (r *HashRing) Lookup(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sorted) == 0 {
		return ""
	}
	h := hashKey(key)
	idx := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i] >= h })
	if idx == len(r.sorted) {
		idx = 0
	}
	return r.ring[r.sorted[idx]]
}

// LookupN returns up to n distinct physical nodes for key, walking the ring
// clockwise from key's position. Used to pick a fallback ground station
// different from the one that just failed a command dispatch.
func (r *HashRing) LookupN(key string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.sorted) == 0 || n <= 0 {
		return nil
	}
	h := hashKey(key)
	start := sort.Search(len(r.sorted), func(i int) bool { return r.sorted[i] >= h })
	seen := make(map[string]bool, n)
	out := make([]string, 0, n)
	for i := 0; i < len(r.sorted) && len(out) < n; i++ {
		idx := (start + i) % len(r.sorted)
		node := r.ring[r.sorted[idx]]
		if !seen[node] {
			seen[node] = true
			out = append(out, node)
		}
	}
	return out
}

// LookupExcluding returns the node for key, skipping excl if it would
// otherwise be chosen. Falls back to "" when excl is the only node.
func (r *HashRing) LookupExcluding(key string, excl string) string {
	for _, n := range r.LookupN(key, r.Size()) {
		if n != excl {
			return n
		}
	}
	return ""
}
