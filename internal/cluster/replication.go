package cluster

// ReplicationManager is the membership registry plus the ring lookup in
// one place: it knows which nodes form the cluster and which of them hold
// replicas of a given key.
//
// Membership is static for the life of the process — every node starts
// with the same seed list, so every node computes identical preference
// lists without coordination. The underlying ring still supports
// AddNode/RemoveNode for when that stops being true.
type ReplicationManager struct {
	ring *Ring
}

// NewReplicationManager builds the registry over the given node
// identifiers (host:port strings). vnodes <= 0 selects the default
// multiplicity.
func NewReplicationManager(nodes []string, vnodes int) *ReplicationManager {
	return &ReplicationManager{ring: NewRing(nodes, vnodes)}
}

// GetReplicas returns the preference list for key: up to n distinct nodes
// in ring order. The first entry is the routing primary but carries no
// special durability role — any node can coordinate any key.
func (rm *ReplicationManager) GetReplicas(key string, n int) []string {
	return rm.ring.GetNodesForKey(key, n)
}

// Nodes returns all cluster members, sorted.
func (rm *ReplicationManager) Nodes() []string {
	return rm.ring.Nodes()
}

// NodeCount returns the physical cluster size.
func (rm *ReplicationManager) NodeCount() int {
	return rm.ring.NodeCount()
}

// Ring exposes the underlying hash ring.
func (rm *ReplicationManager) Ring() *Ring {
	return rm.ring
}
