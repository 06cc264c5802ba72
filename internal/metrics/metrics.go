// Package metrics tracks performance and availability counters for a node.
//
// Everything lives behind one mutex. Aggregated summaries are computed by
// unexported helpers that assume the lock is already held, so the public
// GetSummary call takes the lock exactly once.
package metrics

import (
	"sort"
	"sync"
	"time"
)

const latencyWindowSize = 1000

// NodeStats counts per-peer outcomes as seen from this node's RPC client.
type NodeStats struct {
	Success uint64 `json:"success"`
	Failure uint64 `json:"failure"`
	Timeout uint64 `json:"timeout"`
}

// Metrics is a node-local metrics registry.
type Metrics struct {
	mu    sync.Mutex
	start time.Time

	readCount       uint64
	writeCount      uint64
	readRepairCount uint64
	conflictCount   uint64

	// Rolling latency windows: fixed-size rings, newest overwrites oldest.
	readLatencies  []float64
	writeLatencies []float64
	readIdx        int
	writeIdx       int
	readFull       bool
	writeFull      bool

	readQuorumSuccess  uint64
	readQuorumFailure  uint64
	writeQuorumSuccess uint64
	writeQuorumFailure uint64

	nodeResponses map[string]*NodeStats
}

// New creates an empty registry.
func New() *Metrics {
	return &Metrics{
		start:          time.Now(),
		readLatencies:  make([]float64, latencyWindowSize),
		writeLatencies: make([]float64, latencyWindowSize),
		nodeResponses:  make(map[string]*NodeStats),
	}
}

// RecordRead records one coordinated read with its latency and whether the
// read quorum was met.
func (m *Metrics) RecordRead(latencyMs float64, quorumOK bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCount++
	m.readLatencies[m.readIdx] = latencyMs
	m.readIdx = (m.readIdx + 1) % latencyWindowSize
	if m.readIdx == 0 {
		m.readFull = true
	}
	if quorumOK {
		m.readQuorumSuccess++
	} else {
		m.readQuorumFailure++
	}
}

// RecordWrite records one coordinated write (or delete — tombstones are
// writes) with its latency and quorum outcome.
func (m *Metrics) RecordWrite(latencyMs float64, quorumOK bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCount++
	m.writeLatencies[m.writeIdx] = latencyMs
	m.writeIdx = (m.writeIdx + 1) % latencyWindowSize
	if m.writeIdx == 0 {
		m.writeFull = true
	}
	if quorumOK {
		m.writeQuorumSuccess++
	} else {
		m.writeQuorumFailure++
	}
}

// RecordReadRepair counts one read that pushed repairs to replicas.
func (m *Metrics) RecordReadRepair() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readRepairCount++
}

// RecordConflict counts one read that returned more than one sibling.
func (m *Metrics) RecordConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictCount++
}

// RecordNodeResponse counts the outcome of a single RPC to a peer.
func (m *Metrics) RecordNodeResponse(node string, success, timeout bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.nodeResponses[node]
	if !ok {
		stats = &NodeStats{}
		m.nodeResponses[node] = stats
	}
	switch {
	case success:
		stats.Success++
	case timeout:
		stats.Timeout++
	default:
		stats.Failure++
	}
}

// LatencyStats summarizes one rolling window.
type LatencyStats struct {
	AvgMs float64 `json:"avg_ms"`
	P99Ms float64 `json:"p99_ms"`
	Count int     `json:"samples"`
}

// Summary is the full metrics snapshot served at /metrics.
type Summary struct {
	UptimeSeconds float64 `json:"uptime_seconds"`

	Reads       uint64 `json:"reads"`
	Writes      uint64 `json:"writes"`
	ReadRepairs uint64 `json:"read_repairs"`
	Conflicts   uint64 `json:"conflicts"`

	ReadLatency  LatencyStats `json:"read_latency"`
	WriteLatency LatencyStats `json:"write_latency"`

	ReadQuorumSuccess  uint64 `json:"read_quorum_success"`
	ReadQuorumFailure  uint64 `json:"read_quorum_failure"`
	WriteQuorumSuccess uint64 `json:"write_quorum_success"`
	WriteQuorumFailure uint64 `json:"write_quorum_failure"`

	// Availability is the fraction of coordinated operations that met
	// their quorum. 1.0 when nothing has happened yet.
	Availability float64 `json:"availability"`

	NodeResponses map[string]NodeStats `json:"node_responses"`
}

// GetSummary returns a consistent snapshot of all counters.
func (m *Metrics) GetSummary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		UptimeSeconds:      time.Since(m.start).Seconds(),
		Reads:              m.readCount,
		Writes:             m.writeCount,
		ReadRepairs:        m.readRepairCount,
		Conflicts:          m.conflictCount,
		ReadLatency:        windowStats(m.readLatencies, m.readIdx, m.readFull),
		WriteLatency:       windowStats(m.writeLatencies, m.writeIdx, m.writeFull),
		ReadQuorumSuccess:  m.readQuorumSuccess,
		ReadQuorumFailure:  m.readQuorumFailure,
		WriteQuorumSuccess: m.writeQuorumSuccess,
		WriteQuorumFailure: m.writeQuorumFailure,
		NodeResponses:      make(map[string]NodeStats, len(m.nodeResponses)),
	}

	total := m.readQuorumSuccess + m.readQuorumFailure + m.writeQuorumSuccess + m.writeQuorumFailure
	if total == 0 {
		s.Availability = 1.0
	} else {
		s.Availability = float64(m.readQuorumSuccess+m.writeQuorumSuccess) / float64(total)
	}

	for node, stats := range m.nodeResponses {
		s.NodeResponses[node] = *stats
	}
	return s
}

// windowStats computes avg and p99 over the populated part of a ring.
func windowStats(ring []float64, idx int, full bool) LatencyStats {
	n := idx
	if full {
		n = len(ring)
	}
	if n == 0 {
		return LatencyStats{}
	}

	samples := make([]float64, n)
	copy(samples, ring[:n])

	var sum float64
	for _, v := range samples {
		sum += v
	}
	sort.Float64s(samples)

	p99idx := (n * 99) / 100
	if p99idx >= n {
		p99idx = n - 1
	}
	return LatencyStats{
		AvgMs: sum / float64(n),
		P99Ms: samples[p99idx],
		Count: n,
	}
}
