// Package config holds the cluster parameters of a node: replication
// factor, quorum sizes, timeouts, ring multiplicity, and the static member
// list. Values come from flags or a YAML file; either way they are frozen
// before the node starts serving.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the classic N=3, R=2, W=2 deployment.
const (
	DefaultN = 3
	DefaultR = 2
	DefaultW = 2

	DefaultRequestTimeout = 300 * time.Millisecond
	DefaultVnodes         = 100
)

// Duration wraps time.Duration so YAML configs can use Go duration syntax
// ("300ms", "2s") — yaml.v3 has no native decoding for durations.
type Duration time.Duration

// UnmarshalYAML decodes a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full node configuration.
type Config struct {
	NodeID  string   `yaml:"node_id"` // host:port — also this node's identity in vector clocks
	Addr    string   `yaml:"addr"`    // listen address; defaults to NodeID
	Nodes   []string `yaml:"nodes"`   // every cluster member including self
	DataDir string   `yaml:"data_dir"`

	N int `yaml:"n"`
	R int `yaml:"r"`
	W int `yaml:"w"`

	RequestTimeout Duration `yaml:"request_timeout"`
	Vnodes         int      `yaml:"vnodes"`
}

// Default returns a config with every tunable at its default; NodeID,
// Addr, and Nodes still have to be filled in.
func Default() Config {
	return Config{
		N:              DefaultN,
		R:              DefaultR,
		W:              DefaultW,
		RequestTimeout: Duration(DefaultRequestTimeout),
		Vnodes:         DefaultVnodes,
	}
}

// FromFile loads a YAML config, with unset tunables falling back to
// defaults.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Addr == "" {
		cfg.Addr = cfg.NodeID
	}
	return cfg, nil
}

// Validate checks the node-level invariants.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one cluster node is required")
	}
	if !ValidQuorum(c.N, c.R, c.W) {
		return fmt.Errorf("invalid quorum parameters: N=%d R=%d W=%d", c.N, c.R, c.W)
	}
	return nil
}

// ConsistencyLevel reports "strong" when R+W > N (a read quorum always
// overlaps a write quorum), "eventual" otherwise.
func (c Config) ConsistencyLevel() string {
	if c.R+c.W > c.N {
		return "strong"
	}
	return "eventual"
}

// ValidQuorum checks per-request quorum parameters: all positive, and
// neither quorum larger than the replica set.
func ValidQuorum(n, r, w int) bool {
	if n <= 0 || r <= 0 || w <= 0 {
		return false
	}
	return r <= n && w <= n
}
