// cmd/server is the entrypoint for a KV store node.
//
// Every node is identical — there are no dedicated masters, and whichever
// node a client reaches coordinates the request. A node starts with its
// own identifier (host:port) and the static list of all cluster members.
//
// Example — 3-node cluster on one machine:
//
//	./server --id 127.0.0.1:5001 --nodes 127.0.0.1:5001,127.0.0.1:5002,127.0.0.1:5003
//	./server --id 127.0.0.1:5002 --nodes 127.0.0.1:5001,127.0.0.1:5002,127.0.0.1:5003
//	./server --id 127.0.0.1:5003 --nodes 127.0.0.1:5001,127.0.0.1:5002,127.0.0.1:5003
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RAAHUL-tech/mini-dynamo/internal/api"
	"github.com/RAAHUL-tech/mini-dynamo/internal/cluster"
	"github.com/RAAHUL-tech/mini-dynamo/internal/config"
	"github.com/RAAHUL-tech/mini-dynamo/internal/metrics"
	"github.com/RAAHUL-tech/mini-dynamo/internal/store"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "Optional YAML config file; flags override it")
	nodeID := flag.String("id", "127.0.0.1:5001", "Node identifier (host:port, also the listen address)")
	addr := flag.String("addr", "", "Listen address; defaults to the node identifier")
	nodesFlag := flag.String("nodes", "", "Comma-separated list of all cluster nodes (host:port)")
	dataDir := flag.String("data-dir", "", "Directory for WAL and snapshots; empty means in-memory only")
	n := flag.Int("n", config.DefaultN, "Replication factor (N)")
	r := flag.Int("r", config.DefaultR, "Read quorum (R)")
	w := flag.Int("w", config.DefaultW, "Write quorum (W)")
	timeout := flag.Duration("timeout", config.DefaultRequestTimeout, "Per-RPC timeout")
	vnodes := flag.Int("vnodes", config.DefaultVnodes, "Virtual nodes per physical node")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	// ── Config ─────────────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.FromFile(*configPath)
		if err != nil {
			log.WithError(err).Fatal("load config")
		}
	}

	// Flags win over the file for anything explicitly set.
	flagSet := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { flagSet[f.Name] = true })

	if flagSet["id"] || cfg.NodeID == "" {
		cfg.NodeID = *nodeID
	}
	if flagSet["addr"] {
		cfg.Addr = *addr
	}
	if cfg.Addr == "" {
		cfg.Addr = cfg.NodeID
	}
	if flagSet["nodes"] || len(cfg.Nodes) == 0 {
		if *nodesFlag != "" {
			cfg.Nodes = strings.Split(*nodesFlag, ",")
		} else {
			cfg.Nodes = []string{cfg.NodeID}
		}
	}
	if flagSet["data-dir"] {
		cfg.DataDir = *dataDir
	}
	if flagSet["n"] {
		cfg.N = *n
	}
	if flagSet["r"] {
		cfg.R = *r
	}
	if flagSet["w"] {
		cfg.W = *w
	}
	if flagSet["timeout"] {
		cfg.RequestTimeout = config.Duration(*timeout)
	}
	if flagSet["vnodes"] {
		cfg.Vnodes = *vnodes
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.ConsistencyLevel() != "strong" {
		log.Warnf("R(%d) + W(%d) <= N(%d): reads are eventually consistent", cfg.R, cfg.W, cfg.N)
	}

	// ── Storage ────────────────────────────────────────────────────────────
	storeDir := cfg.DataDir
	if storeDir != "" {
		// host:port makes a poor directory name — flatten the colon.
		storeDir = filepath.Join(storeDir, strings.ReplaceAll(cfg.NodeID, ":", "_"))
	}
	s, err := store.New(storeDir)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer s.Close()

	// ── Core wiring ────────────────────────────────────────────────────────
	m := metrics.New()
	detector := cluster.NewFailureDetector(cluster.DefaultFailureThreshold)
	replication := cluster.NewReplicationManager(cfg.Nodes, cfg.Vnodes)
	rpc := cluster.NewHTTPRPC(cfg.RequestTimeout.Std(), detector, m)
	repairer := cluster.NewReadRepairer(cfg.NodeID, s, rpc, log)
	coordinator := cluster.NewCoordinator(cfg.NodeID, s, replication, rpc, repairer, m, log)

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(log), api.Recovery(log))

	handler := api.NewHandler(coordinator, s, replication, detector, m, cfg)
	handler.Register(router)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"node":        cfg.NodeID,
			"addr":        cfg.Addr,
			"cluster":     len(cfg.Nodes),
			"N":           cfg.N,
			"R":           cfg.R,
			"W":           cfg.W,
			"consistency": cfg.ConsistencyLevel(),
		}).Info("node listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// ── Background maintenance ─────────────────────────────────────────────
	stopMaint := make(chan struct{})

	// Periodic snapshot bounds WAL replay time after a restart.
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.Snapshot(); err != nil {
					log.WithError(err).Warn("snapshot failed")
				}
			case <-stopMaint:
				return
			}
		}
	}()

	// Periodic compaction rewrites sibling lists to their survivors so
	// dominated versions do not pile up on hot keys.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, key := range s.Keys() {
					if err := s.Compact(key); err != nil {
						log.WithError(err).WithField("key", key).Warn("compaction failed")
					}
				}
			case <-stopMaint:
				return
			}
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(stopMaint)

	log.WithField("node", cfg.NodeID).Info("shutting down")

	// Final snapshot so the next boot replays little. It runs before the
	// HTTP server shuts down, so writes accepted after it stay in the WAL.
	if err := s.Snapshot(); err != nil {
		log.WithError(err).Warn("final snapshot failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
}
