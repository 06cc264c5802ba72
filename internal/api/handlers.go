// Package api wires up the Gin HTTP router: the public KV surface clients
// talk to, the internal surface peers talk to, and the observability
// endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/RAAHUL-tech/mini-dynamo/internal/cluster"
	"github.com/RAAHUL-tech/mini-dynamo/internal/config"
	"github.com/RAAHUL-tech/mini-dynamo/internal/metrics"
	"github.com/RAAHUL-tech/mini-dynamo/internal/store"
)

// Handler holds all dependencies injected from main.
type Handler struct {
	coordinator *cluster.Coordinator
	storage     *store.Storage
	replication *cluster.ReplicationManager
	detector    *cluster.FailureDetector
	metrics     *metrics.Metrics
	cfg         config.Config
}

// NewHandler creates a Handler.
func NewHandler(
	coordinator *cluster.Coordinator,
	storage *store.Storage,
	replication *cluster.ReplicationManager,
	detector *cluster.FailureDetector,
	m *metrics.Metrics,
	cfg config.Config,
) *Handler {
	return &Handler{
		coordinator: coordinator,
		storage:     storage,
		replication: replication,
		detector:    detector,
		metrics:     m,
		cfg:         cfg,
	}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	// Public KV API — used by clients.
	kv := r.Group("/kv")
	kv.PUT("/:key", h.Put)
	kv.GET("/:key", h.Get)
	kv.DELETE("/:key", h.Delete)

	// Internal endpoints used only by peer nodes.
	internal := r.Group("/internal")
	internal.PUT("/kv/:key", h.InternalPut)
	internal.GET("/kv/:key", h.InternalGet)

	// Observability.
	r.GET("/metrics", h.Metrics)
	r.GET("/health", h.Health)
	r.GET("/cluster/nodes", h.ClusterNodes)
}

// ─── Public KV handlers ───────────────────────────────────────────────────────

type putRequest struct {
	Value json.RawMessage `json:"value"`
	N     *int            `json:"N"`
	W     *int            `json:"W"`
}

type deleteRequest struct {
	N *int `json:"N"`
	W *int `json:"W"`
}

// Put handles PUT /kv/:key
// Body: {"value": <any JSON>, "N"?: int, "W"?: int}
func (h *Handler) Put(c *gin.Context) {
	key := c.Param("key")

	var body putRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	n := orDefault(body.N, h.cfg.N)
	w := orDefault(body.W, h.cfg.W)
	if !config.ValidQuorum(n, h.cfg.R, w) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quorum parameters"})
		return
	}

	success := h.coordinator.Put(key, body.Value, n, w)
	status := http.StatusOK
	if !success {
		// The write may still be persisted at some replicas; read repair
		// reconciles it on later reads.
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"success": success})
}

// Get handles GET /kv/:key?R=&N=
// Returns every surviving sibling; an empty list means the key is absent,
// deleted, or the read quorum was missed.
func (h *Handler) Get(c *gin.Context) {
	key := c.Param("key")

	r, err := queryInt(c, "R", h.cfg.R)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid R"})
		return
	}
	n, err := queryInt(c, "N", h.cfg.N)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid N"})
		return
	}
	if !config.ValidQuorum(n, r, h.cfg.W) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quorum parameters"})
		return
	}

	versions := h.coordinator.Get(key, r, n)
	if versions == nil {
		versions = []store.Version{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// Delete handles DELETE /kv/:key
// Body (optional): {"N"?: int, "W"?: int}
func (h *Handler) Delete(c *gin.Context) {
	key := c.Param("key")

	var body deleteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	n := orDefault(body.N, h.cfg.N)
	w := orDefault(body.W, h.cfg.W)
	if !config.ValidQuorum(n, h.cfg.R, w) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quorum parameters"})
		return
	}

	success := h.coordinator.Delete(key, n, w)
	status := http.StatusOK
	if !success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"success": success})
}

// ─── Internal (peer-to-peer) handlers ────────────────────────────────────────

// InternalPut handles PUT /internal/kv/:key
// The body is a single version as written by a coordinator; it is appended
// to local storage as-is, tombstone or not.
func (h *Handler) InternalPut(c *gin.Context) {
	key := c.Param("key")

	var v store.Version
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.storage.Put(key, v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// InternalGet handles GET /internal/kv/:key
// Returns ALL locally stored versions including tombstones — peers doing
// context gathers and read repair must see the unfiltered list.
func (h *Handler) InternalGet(c *gin.Context) {
	key := c.Param("key")

	versions := h.storage.GetAll(key)
	if versions == nil {
		versions = []store.Version{}
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// ─── Observability ───────────────────────────────────────────────────────────

// Metrics handles GET /metrics.
func (h *Handler) Metrics(c *gin.Context) {
	summary := h.metrics.GetSummary()
	c.JSON(http.StatusOK, gin.H{
		"metrics":      summary,
		"failed_nodes": h.detector.FailedNodes(),
	})
}

// Health handles GET /health — used by load balancers and probes.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"node":        h.cfg.NodeID,
		"status":      "ok",
		"nodes":       h.replication.NodeCount(),
		"consistency": h.cfg.ConsistencyLevel(),
	})
}

// ClusterNodes handles GET /cluster/nodes.
func (h *Handler) ClusterNodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"nodes": h.replication.Nodes()})
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
