// Package config loads the store's on-disk YAML configuration into a
// plain struct, the way cmd/warren's cobra flags fed manager.Config and
// worker.Config, except this store takes a config file rather than a
// flat list of flags because the option surface (document batching,
// index backpressure, async routing) is too wide for comfortable flag
// wiring.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dingodb/dingo-store/pkg/log"
)

// Config is the top-level configuration for a store process.
type Config struct {
	Node   NodeConfig   `yaml:"node"`
	Raft   RaftConfig   `yaml:"raft"`
	Engine EngineConfig `yaml:"engine"`
	Core   CoreConfig   `yaml:"core"`
	Log    LogConfig    `yaml:"log"`
	Metric MetricConfig `yaml:"metrics"`
}

// NodeConfig identifies this process within the cluster.
type NodeConfig struct {
	ID       string `yaml:"id"`
	BindAddr string `yaml:"bind_addr"`
	WireAddr string `yaml:"wire_addr"`
	DataDir  string `yaml:"data_dir"`
}

// RaftConfig configures the per-region Raft groups hosted by this node.
type RaftConfig struct {
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `yaml:"election_timeout"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	SnapshotThreshold uint64       `yaml:"snapshot_threshold"`
}

// EngineConfig selects and configures the underlying KV adapter.
type EngineConfig struct {
	// Backend is "bolt" or "badger".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// CoreConfig holds the options spec.md §6 says the core recognizes.
type CoreConfig struct {
	DocumentMaxBatchCount       int   `yaml:"document_max_batch_count"`
	DocumentMaxRequestSize      int64 `yaml:"document_max_request_size"`
	MaxPrewriteCount            int   `yaml:"max_prewrite_count"`
	StreamMessageMaxLimitSize   int64 `yaml:"stream_message_max_limit_size"`
	FlatNeedSaveCount           int   `yaml:"flat_need_save_count"`
	DocumentMaxBackgroundTasks  int   `yaml:"document_max_background_task_count"`
	EnableAsyncDocumentSearch   bool  `yaml:"enable_async_document_search"`
	EnableAsyncDocumentCount    bool  `yaml:"enable_async_document_count"`
	EnableAsyncDocumentOperation bool `yaml:"enable_async_document_operation"`
	GCSafePointInterval         time.Duration `yaml:"gc_safe_point_interval"`
	StreamTTL                   time.Duration `yaml:"stream_ttl"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricConfig configures the /metrics HTTP listener.
type MetricConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Defaults returns a Config populated with spec.md §6's defaults.
func Defaults() Config {
	return Config{
		Node: NodeConfig{
			BindAddr: "127.0.0.1:17001",
			WireAddr: "127.0.0.1:17002",
			DataDir:  "./data",
		},
		Raft: RaftConfig{
			HeartbeatTimeout:  1 * time.Second,
			ElectionTimeout:   1 * time.Second,
			SnapshotInterval:  2 * time.Minute,
			SnapshotThreshold: 8192,
		},
		Engine: EngineConfig{
			Backend: "bolt",
			Dir:     "./data/kv",
		},
		Core: CoreConfig{
			DocumentMaxBatchCount:      4096,
			DocumentMaxRequestSize:     32 << 20,
			MaxPrewriteCount:           1024,
			StreamMessageMaxLimitSize:  4 << 20,
			FlatNeedSaveCount:          10000,
			DocumentMaxBackgroundTasks: 32,
			GCSafePointInterval:        10 * time.Minute,
			StreamTTL:                 60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Metric: MetricConfig{
			ListenAddr: "127.0.0.1:17003",
		},
	}
}

// Load reads and parses a YAML config file, starting from Defaults and
// overlaying whatever the file sets.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the minimal invariants the rest of the tree assumes hold.
func (c Config) Validate() error {
	if c.Node.ID == "" {
		return fmt.Errorf("config: node.id is required")
	}
	if c.Core.MaxPrewriteCount <= 0 {
		return fmt.Errorf("config: core.max_prewrite_count must be positive")
	}
	if c.Engine.Backend != "bolt" && c.Engine.Backend != "badger" {
		return fmt.Errorf("config: engine.backend must be %q or %q, got %q", "bolt", "badger", c.Engine.Backend)
	}
	return nil
}

// InitLogging wires LogConfig into pkg/log's global logger.
func (c Config) InitLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	})
}
