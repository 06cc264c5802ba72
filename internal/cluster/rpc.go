package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/RAAHUL-tech/mini-dynamo/internal/metrics"
	"github.com/RAAHUL-tech/mini-dynamo/internal/store"
)

// DefaultRequestTimeout is the hard per-RPC budget. A peer that cannot
// answer in time counts against the quorum exactly like one that refused
// the connection.
const DefaultRequestTimeout = 300 * time.Millisecond

// RPC is the node-to-node transport as the coordinator sees it. Failures
// are absorbed, never raised: a false / not-OK result reduces the success
// count and the request keeps going.
type RPC interface {
	// SendPut delivers one version to the peer's local storage.
	SendPut(node, key string, v store.Version) bool
	// SendGet fetches the peer's full sibling list, tombstones included.
	// ok=false means the transport failed; an empty list with ok=true
	// means the peer answered and has nothing.
	SendGet(node, key string) (versions []store.Version, ok bool)
}

// HTTPRPC talks JSON over HTTP to peers and feeds every outcome into the
// failure detector and the per-node metrics.
type HTTPRPC struct {
	client   *http.Client
	timeout  time.Duration
	detector *FailureDetector
	metrics  *metrics.Metrics
}

// NewHTTPRPC creates the transport. timeout <= 0 selects the default.
func NewHTTPRPC(timeout time.Duration, detector *FailureDetector, m *metrics.Metrics) *HTTPRPC {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &HTTPRPC{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		detector: detector,
		metrics:  m,
	}
}

type versionsResponse struct {
	Versions []store.Version `json:"versions"`
}

// SendPut PUTs a single version to the peer's internal surface.
func (r *HTTPRPC) SendPut(node, key string, v store.Version) bool {
	body, err := json.Marshal(v)
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/internal/kv/%s", node, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.recordError(node, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.recordFailure(node, FailureNetwork)
		return false
	}
	r.recordSuccess(node)
	return true
}

// SendGet fetches all versions for key from the peer.
func (r *HTTPRPC) SendGet(node, key string) ([]store.Version, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/internal/kv/%s", node, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.recordError(node, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.recordFailure(node, FailureNetwork)
		return nil, false
	}

	var out versionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		r.recordFailure(node, FailureNetwork)
		return nil, false
	}
	r.recordSuccess(node)
	return out.Versions, true
}

// recordError classifies a transport error and records it.
func (r *HTTPRPC) recordError(node string, err error) {
	kind := FailureNetwork
	timeout := false

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		kind = FailureTimeout
		timeout = true
	} else if errors.Is(err, context.DeadlineExceeded) {
		kind = FailureTimeout
		timeout = true
	}

	if r.detector != nil {
		r.detector.RecordFailure(node, kind)
	}
	if r.metrics != nil {
		r.metrics.RecordNodeResponse(node, false, timeout)
	}
}

func (r *HTTPRPC) recordFailure(node string, kind FailureKind) {
	if r.detector != nil {
		r.detector.RecordFailure(node, kind)
	}
	if r.metrics != nil {
		r.metrics.RecordNodeResponse(node, false, false)
	}
}

func (r *HTTPRPC) recordSuccess(node string) {
	if r.detector != nil {
		r.detector.RecordSuccess(node)
	}
	if r.metrics != nil {
		r.metrics.RecordNodeResponse(node, true, false)
	}
}

// sendPutWithRetry retries a put with exponential backoff: 100ms, 200ms,
// 400ms. Only the asynchronous read-repair path uses this — the quorum
// fan-out gets exactly one attempt inside its timeout budget, and retrying
// there would just stretch client latency.
func sendPutWithRetry(rpc RPC, node, key string, v store.Version, maxRetries int) bool {
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if rpc.SendPut(node, key, v) {
			return true
		}
	}
	return false
}
