package store

// VectorClock tracks causality between versions written on different nodes.
//
// Problem:
// Two nodes can accept a write for the same key at the same time.
// When their versions later meet, we need to know:
//
//  1. One version causally follows the other → the newer one wins
//  2. Neither observed the other             → both must survive (siblings)
//
// A vector clock answers exactly this question.
//
// Each version carries a map:
//
//	nodeID → counter
//
// A coordinator merges every clock it has observed for the key, then
// increments its own entry. The resulting clock strictly dominates
// everything the write saw — so the write wins over all of it, and is
// concurrent only with writes it genuinely never observed.
//
// Missing entries count as zero. Counters only ever increase, and only at
// their owning node.

import (
	"fmt"
	"maps"
	"sort"
	"strings"
)

// Relation is the outcome of comparing two vector clocks.
type Relation int

const (
	Equal      Relation = iota // identical histories
	Dominates                  // this clock happened-after the other
	Dominated                  // this clock happened-before the other
	Concurrent                 // independent histories — a real conflict
)

// VectorClock maps node identifiers (host:port) to monotone counters.
//
// Example:
//
//	{"127.0.0.1:5001": 3, "127.0.0.1:5002": 1}
//
// means node 5001 coordinated three writes observed by this version and
// node 5002 one.
type VectorClock map[string]uint64

// Increment returns a copy of vc with the counter for nodeID bumped by one.
// An absent entry becomes 1. The receiver is never modified — versions are
// immutable once stored, so their clocks must be too.
func (vc VectorClock) Increment(nodeID string) VectorClock {
	out := vc.Copy()
	if out == nil {
		out = make(VectorClock, 1)
	}
	out[nodeID]++
	return out
}

// Merge returns the pointwise maximum of the two clocks over the union of
// their keys. Merge is commutative, associative, and idempotent; the empty
// clock is its identity.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	merged := vc.Copy()
	if merged == nil {
		merged = make(VectorClock, len(other))
	}
	for node, cnt := range other {
		if cnt > merged[node] {
			merged[node] = cnt
		}
	}
	return merged
}

// Compare reports how vc relates to other.
//
// The scan tracks two flags:
//
//   - vc has some counter strictly greater    → vcBigger
//   - other has some counter strictly greater → otherBigger
//
// Neither → Equal, one → Dominates/Dominated, both → Concurrent.
// Entries missing on either side are treated as zero.
func (vc VectorClock) Compare(other VectorClock) Relation {
	vcBigger := false
	otherBigger := false

	for node, cnt := range vc {
		if cnt > other[node] {
			vcBigger = true
		} else if cnt < other[node] {
			otherBigger = true
		}
	}
	for node, cnt := range other {
		if _, ok := vc[node]; !ok && cnt > 0 {
			otherBigger = true
		}
	}

	switch {
	case !vcBigger && !otherBigger:
		return Equal
	case vcBigger && !otherBigger:
		return Dominates
	case !vcBigger && otherBigger:
		return Dominated
	default:
		return Concurrent
	}
}

// Sum is the total of all counters — a cheap scalar proxy for "how much
// history this clock has seen". Used to pick the causally richest version
// when tombstones and live versions disagree.
func (vc VectorClock) Sum() uint64 {
	var total uint64
	for _, cnt := range vc {
		total += cnt
	}
	return total
}

// Canonical renders the clock as sorted "node=count" pairs joined with
// commas. Two clocks are Equal exactly when their canonical forms match,
// and the form gives every node the same total order over clocks — it is
// the tie-break for visibility decisions, so it must not depend on map
// iteration order or wall time.
func (vc VectorClock) Canonical() string {
	if len(vc) == 0 {
		return ""
	}
	nodes := make([]string, 0, len(vc))
	for node, cnt := range vc {
		if cnt > 0 { // explicit zeros mean "never wrote" — same as absent
			nodes = append(nodes, node)
		}
	}
	sort.Strings(nodes)

	var b strings.Builder
	for i, node := range nodes {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%d", node, vc[node])
	}
	return b.String()
}

// Copy returns a deep copy. Maps are reference types in Go; without the
// copy a stored clock and an in-flight one could alias each other.
func (vc VectorClock) Copy() VectorClock {
	if vc == nil {
		return nil
	}
	c := make(VectorClock, len(vc))
	maps.Copy(c, vc)
	return c
}
