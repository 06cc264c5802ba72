package cluster

import "github.com/RAAHUL-tech/mini-dynamo/internal/store"

// Quorum evaluation. No waiting happens here — the coordinator's fan-out
// produces the full response map within the timeout budget, and these
// helpers only judge it.

// ReadResponse is one replica's answer to an internal GET.
//
// OK distinguishes "the replica answered" from "the transport failed".
// An empty version list with OK=true is a perfectly good answer: the
// replica responded and simply has nothing for the key.
type ReadResponse struct {
	Versions []store.Version
	OK       bool
}

// WriteQuorumMet reports whether at least w replicas acknowledged the
// write. Only a literal true counts; absent replicas count as failures.
func WriteQuorumMet(responses map[string]bool, w int) bool {
	success := 0
	for _, ok := range responses {
		if ok {
			success++
		}
	}
	return success >= w
}

// CollectReadQuorum flattens all replica responses into one version list
// and reports whether at least r replicas responded. Every version is
// collected — even from beyond the quorum — because read repair needs the
// complete picture.
func CollectReadQuorum(responses map[string]ReadResponse, r int) ([]store.Version, bool) {
	var versions []store.Version
	responding := 0

	for _, resp := range responses {
		if !resp.OK {
			continue
		}
		responding++
		versions = append(versions, resp.Versions...)
	}
	return versions, responding >= r
}

// QuorumAvailable reports whether a quorum of size required is still
// achievable with the given number of failed nodes.
func QuorumAvailable(totalNodes, failedNodes, required int) bool {
	return totalNodes-failedNodes >= required
}
