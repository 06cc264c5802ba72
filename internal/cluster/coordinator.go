package cluster

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RAAHUL-tech/mini-dynamo/internal/metrics"
	"github.com/RAAHUL-tech/mini-dynamo/internal/store"
)

// Coordinator drives client operations across the key's replicas. Any node
// coordinates any key — the node a client happens to reach gathers causal
// context, fans the operation out to the preference list, and judges the
// quorum. There is no master.
//
// All three operations share one skeleton:
//
//	1. replicas ← preference list from the ring
//	2. context  ← local + remote versions (writes and deletes)
//	3. payload  ← new version from merged context, or collected reads
//	4. dispatch ← all replicas in parallel, local one bypassing RPC
//	5. quorum   ← judge responses against W or R
//	6. post     ← resolve survivors and trigger read repair (reads)
//	7. metrics  ← latency and outcome
type Coordinator struct {
	nodeID      string
	storage     *store.Storage
	replication *ReplicationManager
	rpc         RPC
	repairer    *ReadRepairer
	metrics     *metrics.Metrics
	log         *logrus.Logger
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(
	nodeID string,
	storage *store.Storage,
	replication *ReplicationManager,
	rpc RPC,
	repairer *ReadRepairer,
	m *metrics.Metrics,
	log *logrus.Logger,
) *Coordinator {
	return &Coordinator{
		nodeID:      nodeID,
		storage:     storage,
		replication: replication,
		rpc:         rpc,
		repairer:    repairer,
		metrics:     m,
		log:         log,
	}
}

// ─── Write path ───────────────────────────────────────────────────────────────

// Put writes value under key with replication factor n and write quorum w.
// Returns whether the quorum was met; on false the write may still have
// landed on some replicas, and read repair will reconcile it later.
func (c *Coordinator) Put(key string, value json.RawMessage, n, w int) bool {
	start := time.Now()

	replicas := c.replication.GetReplicas(key, n)
	merged := c.gatherContext(key, replicas)
	newClock := merged.Increment(c.nodeID)

	// The fresh clock strictly dominates everything this write observed,
	// so it wins over all of it — only a write we never saw can end up
	// concurrent.
	version := store.NewVersion(value, newClock)
	success := c.dispatchWrite(key, replicas, version, w)

	c.metrics.RecordWrite(latencyMs(start), success)
	c.log.WithFields(logrus.Fields{
		"key":      key,
		"replicas": len(replicas),
		"clock":    newClock,
		"quorum":   success,
	}).Debug("put coordinated")
	return success
}

// Delete writes a tombstone under key. Tombstones replicate, quorum, and
// merge exactly like live writes — a delete is a write whose payload is
// the fact of deletion.
func (c *Coordinator) Delete(key string, n, w int) bool {
	start := time.Now()

	replicas := c.replication.GetReplicas(key, n)
	merged := c.gatherContext(key, replicas)
	newClock := merged.Increment(c.nodeID)

	tombstone := store.NewTombstone(newClock)
	success := c.dispatchWrite(key, replicas, tombstone, w)

	c.metrics.RecordWrite(latencyMs(start), success)
	c.log.WithFields(logrus.Fields{
		"key":    key,
		"clock":  newClock,
		"quorum": success,
	}).Debug("delete coordinated")
	return success
}

// gatherContext unions the vector clocks of every version currently held
// for key — local storage plus every remote replica, tombstones included —
// and folds them into one merged clock. Unreachable replicas contribute
// nothing; their clocks will be dominated or concurrent later, which is
// the intended design. The gather is not atomic across replicas.
func (c *Coordinator) gatherContext(key string, replicas []string) store.VectorClock {
	var (
		mu       sync.Mutex
		versions []store.Version
		wg       sync.WaitGroup
	)

	// Local state always participates, whether or not this node is in the
	// preference list — a non-replica coordinator may still hold context
	// from earlier repairs.
	versions = append(versions, c.storage.GetAll(key)...)

	for _, node := range replicas {
		if node == c.nodeID {
			continue
		}
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			remote, ok := c.rpc.SendGet(node, key)
			if !ok {
				return
			}
			mu.Lock()
			versions = append(versions, remote...)
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	merged := store.VectorClock{}
	for _, v := range versions {
		merged = merged.Merge(v.VectorClock)
	}
	return merged
}

// dispatchWrite sends the version to every replica in parallel and judges
// the write quorum over the full response map. The local replica appends
// straight to storage; no replica failure short-circuits the rest.
func (c *Coordinator) dispatchWrite(key string, replicas []string, v store.Version, w int) bool {
	var (
		mu        sync.Mutex
		responses = make(map[string]bool, len(replicas))
		wg        sync.WaitGroup
	)

	for _, node := range replicas {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			var ok bool
			if node == c.nodeID {
				ok = c.storage.Put(key, v) == nil
			} else {
				ok = c.rpc.SendPut(node, key, v)
			}
			mu.Lock()
			responses[node] = ok
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	return WriteQuorumMet(responses, w)
}

// ─── Read path ────────────────────────────────────────────────────────────────

// Get reads key with read quorum r over n replicas. It returns the live
// survivors — one version normally, several siblings when concurrent
// writers never observed each other, none when the key is absent, deleted,
// or the quorum was missed.
func (c *Coordinator) Get(key string, r, n int) []store.Version {
	start := time.Now()

	replicas := c.replication.GetReplicas(key, n)
	responses := c.gatherRead(key, replicas)

	allVersions, quorumMet := CollectReadQuorum(responses, r)
	if !quorumMet {
		c.metrics.RecordRead(latencyMs(start), false)
		c.log.WithFields(logrus.Fields{
			"key":      key,
			"replicas": len(replicas),
		}).Warn("read quorum not met")
		return nil
	}

	resolved := store.Resolve(allVersions)

	// Split survivors into tombstones and live versions, then decide which
	// side is visible: the causally richest tombstone against the causally
	// richest live version, tombstone winning ties.
	var tombstones, live []store.Version
	for _, v := range resolved {
		if v.Deleted {
			tombstones = append(tombstones, v)
		} else {
			live = append(live, v)
		}
	}

	if len(tombstones) > 0 && len(live) > 0 {
		rel := vcMax(tombstones).VectorClock.Compare(vcMax(live).VectorClock)
		if rel == store.Dominates || rel == store.Equal {
			live = nil
		} else {
			tombstones = nil
		}
	}

	// Deleted key: propagate the tombstones so stragglers learn about the
	// delete, but the client sees nothing.
	if len(live) == 0 {
		if len(tombstones) > 0 && c.repairer.Repair(key, tombstones, responses) {
			c.metrics.RecordReadRepair()
		}
		c.metrics.RecordRead(latencyMs(start), true)
		return nil
	}

	if len(live) > 1 {
		c.metrics.RecordConflict()
	}
	if c.repairer.Repair(key, live, responses) {
		c.metrics.RecordReadRepair()
	}

	c.metrics.RecordRead(latencyMs(start), true)
	return live
}

// gatherRead collects the full sibling list from every replica in
// parallel. Transport failures are marked not-OK and judged by the quorum;
// the local replica always answers.
func (c *Coordinator) gatherRead(key string, replicas []string) map[string]ReadResponse {
	var (
		mu        sync.Mutex
		responses = make(map[string]ReadResponse, len(replicas))
		wg        sync.WaitGroup
	)

	for _, node := range replicas {
		if node == c.nodeID {
			mu.Lock()
			responses[node] = ReadResponse{Versions: c.storage.GetAll(key), OK: true}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			versions, ok := c.rpc.SendGet(node, key)
			mu.Lock()
			responses[node] = ReadResponse{Versions: versions, OK: ok}
			mu.Unlock()
		}(node)
	}
	wg.Wait()
	return responses
}

// vcMax picks the version with the causally richest clock: greatest
// counter sum, ties broken by the canonical clock encoding so every node
// makes the same visibility decision.
func vcMax(versions []store.Version) store.Version {
	best := versions[0]
	bestSum := best.VectorClock.Sum()
	bestKey := best.VectorClock.Canonical()

	for _, v := range versions[1:] {
		sum := v.VectorClock.Sum()
		key := v.VectorClock.Canonical()
		if sum > bestSum || (sum == bestSum && key > bestKey) {
			best, bestSum, bestKey = v, sum, key
		}
	}
	return best
}

func latencyMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
