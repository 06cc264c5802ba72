package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := New()

	m.RecordRead(1.5, true)
	m.RecordRead(2.5, false)
	m.RecordWrite(3.0, true)
	m.RecordReadRepair()
	m.RecordConflict()

	s := m.GetSummary()
	assert.Equal(t, uint64(2), s.Reads)
	assert.Equal(t, uint64(1), s.Writes)
	assert.Equal(t, uint64(1), s.ReadRepairs)
	assert.Equal(t, uint64(1), s.Conflicts)
	assert.Equal(t, uint64(1), s.ReadQuorumSuccess)
	assert.Equal(t, uint64(1), s.ReadQuorumFailure)
	assert.Equal(t, uint64(1), s.WriteQuorumSuccess)
}

func TestMetricsLatencyStats(t *testing.T) {
	m := New()
	for i := 1; i <= 4; i++ {
		m.RecordRead(float64(i), true)
	}

	s := m.GetSummary()
	assert.Equal(t, 4, s.ReadLatency.Count)
	assert.InDelta(t, 2.5, s.ReadLatency.AvgMs, 0.001)
	assert.InDelta(t, 4.0, s.ReadLatency.P99Ms, 0.001)
}

func TestMetricsAvailability(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, m.GetSummary().Availability, "no traffic means fully available")

	m.RecordWrite(1, true)
	m.RecordWrite(1, true)
	m.RecordWrite(1, false)
	m.RecordRead(1, true)

	assert.InDelta(t, 0.75, m.GetSummary().Availability, 0.001)
}

func TestMetricsNodeResponses(t *testing.T) {
	m := New()
	m.RecordNodeResponse("n1", true, false)
	m.RecordNodeResponse("n1", false, true)
	m.RecordNodeResponse("n1", false, false)
	m.RecordNodeResponse("n2", true, false)

	s := m.GetSummary()
	assert.Equal(t, NodeStats{Success: 1, Failure: 1, Timeout: 1}, s.NodeResponses["n1"])
	assert.Equal(t, NodeStats{Success: 1}, s.NodeResponses["n2"])
}

func TestMetricsLatencyWindowWraps(t *testing.T) {
	m := New()
	for i := 0; i < latencyWindowSize+100; i++ {
		m.RecordWrite(1.0, true)
	}
	s := m.GetSummary()
	assert.Equal(t, latencyWindowSize, s.WriteLatency.Count)
	assert.Equal(t, uint64(latencyWindowSize+100), s.Writes)
}

func TestMetricsConcurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); m.RecordRead(1, true) }()
		go func() { defer wg.Done(); m.RecordNodeResponse("n", true, false) }()
		go func() { defer wg.Done(); _ = m.GetSummary() }()
	}
	wg.Wait()

	assert.Equal(t, uint64(50), m.GetSummary().Reads)
}
