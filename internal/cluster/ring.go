// Package cluster contains the distributed half of the system: the
// consistent hash ring that places keys on replicas, the coordinator that
// drives quorum reads and writes across them, the read-repair path that
// converges divergent replicas, and the failure detector that keeps score
// on peers.
package cluster

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
)

// Why a hash ring instead of hash(key) % N?
//
// Because with modulo, adding or removing one node remaps almost every
// key. On a ring only the keys adjacent to the changed node move — on
// average 1/N of them.
//
// Each physical node is placed on the ring many times ("virtual nodes")
// so its ownership arcs are spread evenly. A key belongs to the first
// virtual point clockwise from its own hash; replicas are the next
// distinct physical nodes continuing clockwise.

// DefaultVnodes is the virtual-node multiplicity per physical node.
const DefaultVnodes = 100

// Ring is the consistent hash ring. Safe for concurrent use. In this
// system it is built once at startup and only read afterwards, but the
// mutation API is kept so membership changes remain possible.
//
// Fields:
//
//	vnodes → virtual points per physical node
//	ring   → point on the ring → physical node
//	sorted → sorted points, for binary search
type Ring struct {
	mu     sync.RWMutex
	vnodes int
	ring   map[uint32]string
	sorted []uint32
}

// NewRing creates a ring holding the given nodes. vnodes <= 0 selects the
// default multiplicity.
func NewRing(nodes []string, vnodes int) *Ring {
	if vnodes <= 0 {
		vnodes = DefaultVnodes
	}
	r := &Ring{
		vnodes: vnodes,
		ring:   make(map[uint32]string, len(nodes)*vnodes),
	}
	for _, node := range nodes {
		r.AddNode(node)
	}
	return r
}

// AddNode places all of the node's virtual points on the ring. Each point
// hashes "node#i" so the copies land in unrelated positions. A collision
// at an occupied point goes to the later insert — deterministic, since
// construction order is fixed per deployment.
func (r *Ring) AddNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.vnodes; i++ {
		r.ring[r.hash(fmt.Sprintf("%s#%d", node, i))] = node
	}
	r.rebuild()
}

// RemoveNode deletes all of the node's virtual points.
func (r *Ring) RemoveNode(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.vnodes; i++ {
		h := r.hash(fmt.Sprintf("%s#%d", node, i))
		if r.ring[h] == node {
			delete(r.ring, h)
		}
	}
	r.rebuild()
}

// GetNodesForKey returns the ordered preference list: up to n distinct
// physical nodes, collected clockwise starting at the first point at or
// after the key's hash. Fewer than n come back only when the ring holds
// fewer than n physical nodes.
//
// For a fixed node set and multiplicity this is a pure function of the
// key — every coordinator computes the same list.
func (r *Ring) GetNodesForKey(key string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sorted) == 0 || n <= 0 {
		return nil
	}

	idx := r.search(r.hash(key))
	seen := make(map[string]bool, n)
	nodes := make([]string, 0, n)

	for i := 0; i < len(r.sorted) && len(nodes) < n; i++ {
		point := r.sorted[(idx+i)%len(r.sorted)]
		node := r.ring[point]
		if !seen[node] {
			seen[node] = true
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// Nodes returns the distinct physical nodes currently on the ring, sorted.
func (r *Ring) Nodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var nodes []string
	for _, id := range r.ring {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
	}
	slices.Sort(nodes)
	return nodes
}

// NodeCount returns the number of physical nodes (not virtual points).
func (r *Ring) NodeCount() int {
	return len(r.Nodes())
}

// hash maps a string to a 32-bit ring position. MD5 is not here for
// security — it is a stable, well-avalanched hash that every node in the
// deployment agrees on. Only the first four bytes are used because the
// ring is 2^32 wide.
func (r *Ring) hash(s string) uint32 {
	h := md5.Sum([]byte(s))
	return binary.BigEndian.Uint32(h[:4])
}

// rebuild reconstructs the sorted point list after a membership change.
func (r *Ring) rebuild() {
	r.sorted = make([]uint32, 0, len(r.ring))
	for point := range r.ring {
		r.sorted = append(r.sorted, point)
	}
	slices.Sort(r.sorted)
}

// search finds the index of the first point >= pos, wrapping to 0 past the
// end of the ring.
func (r *Ring) search(pos uint32) int {
	idx, _ := slices.BinarySearch(r.sorted, pos)
	if idx == len(r.sorted) {
		idx = 0
	}
	return idx
}
