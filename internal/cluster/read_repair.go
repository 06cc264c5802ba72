package cluster

import (
	"github.com/sirupsen/logrus"

	"github.com/RAAHUL-tech/mini-dynamo/internal/store"
)

// Read repair is the push phase of convergence. After a read resolves its
// survivors, every replica that answered is checked against them; replicas
// that are missing a survivor, or still hold something a survivor
// dominates, get the survivors pushed back.
//
// The sends are fire-and-forget: the client already has its answer, and a
// repair that fails only means the replica stays stale until the next
// read. Failures are still counted by the failure detector via the RPC
// layer.

const repairRetries = 3

// ReadRepairer plans and pushes repairs for one node's coordinator.
type ReadRepairer struct {
	selfID  string
	storage *store.Storage
	rpc     RPC
	log     *logrus.Logger
}

// NewReadRepairer creates a repairer. The local storage is written
// directly when this node itself is the stale replica.
func NewReadRepairer(selfID string, storage *store.Storage, rpc RPC, log *logrus.Logger) *ReadRepairer {
	return &ReadRepairer{selfID: selfID, storage: storage, rpc: rpc, log: log}
}

// Repair checks each responding replica against the resolved survivors and
// asynchronously pushes every survivor to the ones that need it. Returns
// whether any replica needed repair, so the caller can count it.
//
// Replicas whose transport failed are skipped: nothing is known about what
// they hold, and the push would be aimed at a peer that just refused to
// answer.
func (rr *ReadRepairer) Repair(key string, latest []store.Version, responses map[string]ReadResponse) bool {
	if len(latest) == 0 {
		return false
	}

	var stale []string
	for node, resp := range responses {
		if !resp.OK {
			continue
		}
		if replicaNeedsRepair(resp.Versions, latest) {
			stale = append(stale, node)
		}
	}
	if len(stale) == 0 {
		return false
	}

	go rr.push(key, latest, stale)
	return true
}

// push delivers every survivor to every stale replica, one internal PUT
// per version, with backoff on the remote sends.
func (rr *ReadRepairer) push(key string, latest []store.Version, stale []string) {
	for _, node := range stale {
		for _, v := range latest {
			if node == rr.selfID {
				if err := rr.storage.Put(key, v); err != nil {
					rr.log.WithError(err).WithField("key", key).Warn("read repair: local put failed")
				}
				continue
			}
			if !sendPutWithRetry(rr.rpc, node, key, v, repairRetries) {
				rr.log.WithFields(logrus.Fields{
					"key":     key,
					"replica": node,
				}).Warn("read repair: push failed")
			}
		}
	}
}

// replicaNeedsRepair decides whether a replica holding the given versions
// must receive the survivors.
func replicaNeedsRepair(versions, latest []store.Version) bool {
	// An empty replica needs everything.
	if len(versions) == 0 {
		return true
	}

	allTomb := true
	for _, v := range latest {
		if !v.Deleted {
			allTomb = false
			break
		}
	}

	replicaHasTomb := false
	for _, v := range versions {
		if v.Deleted {
			replicaHasTomb = true
			break
		}
	}

	if allTomb {
		// The key is deleted. The replica is current only if it already
		// holds an equal tombstone for every survivor and none of its own
		// tombstones is causally behind one.
		for _, l := range latest {
			found := false
			for _, v := range versions {
				if v.Deleted && v.VectorClock.Compare(l.VectorClock) == store.Equal {
					found = true
					break
				}
			}
			if !found {
				return true
			}
		}
		for _, v := range versions {
			if !v.Deleted {
				continue
			}
			for _, l := range latest {
				if v.VectorClock.Compare(l.VectorClock) == store.Dominated {
					return true
				}
			}
		}
		return false
	}

	// The key is live again but the replica still holds tombstones from a
	// previous delete — push the live versions that dominate them.
	if replicaHasTomb {
		return true
	}

	// Live data on both sides: repair if the replica holds anything a
	// survivor dominates, or is missing any survivor outright.
	for _, v := range versions {
		for _, l := range latest {
			if v.VectorClock.Compare(l.VectorClock) == store.Dominated {
				return true
			}
		}
	}
	for _, l := range latest {
		found := false
		for _, v := range versions {
			if v.VectorClock.Compare(l.VectorClock) == store.Equal {
				found = true
				break
			}
		}
		if !found {
			return true
		}
	}
	return false
}
