// Package config parses the YAML file describing which KV and blob
// backends to construct, quota and retention defaults, and task worker
// concurrency per kind, per spec.md §2's ambient configuration layer.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/warren/internal/store/kv/badgerkv"
	"github.com/cuemby/warren/internal/store/kv/raftkv"
	"github.com/cuemby/warren/internal/store/kv/sqlkv"
	"github.com/cuemby/warren/pkg/log"
	"gopkg.in/yaml.v3"
)

// KVBackend names which internal/store/kv implementation to construct.
type KVBackend string

const (
	KVBolt   KVBackend = "bolt"
	KVBadger KVBackend = "badger"
	KVSQL    KVBackend = "sql"
	KVRaft   KVBackend = "raft"
)

// BlobBackend names which internal/store/blob.Backend implementation to
// construct.
type BlobBackend string

const (
	BlobFS BlobBackend = "fs"
	BlobS3 BlobBackend = "s3"
)

// Config is the top-level configuration document, unmarshaled from YAML.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Quota   QuotaConfig   `yaml:"quota"`
	Tasks   TasksConfig   `yaml:"tasks"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig mirrors pkg/log.Config's fields as YAML-settable values.
type LogConfig struct {
	Level      string `yaml:"level"`
	JSONOutput bool   `yaml:"json_output"`
}

// StoreConfig selects and configures the KV and blob backends.
type StoreConfig struct {
	KV   KVConfig   `yaml:"kv"`
	Blob BlobConfig `yaml:"blob"`
}

// KVConfig configures whichever internal/store/kv backend Backend names.
type KVConfig struct {
	Backend KVBackend `yaml:"backend"`

	// Bolt/Badger
	DataDir string `yaml:"data_dir"`

	// Badger
	BadgerInMemory bool `yaml:"badger_in_memory"`

	// SQL
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN    string `yaml:"dsn"`

	// Raft
	Raft RaftConfig `yaml:"raft"`
}

// RaftConfig configures a raftkv node.
type RaftConfig struct {
	NodeID       string        `yaml:"node_id"`
	BindAddr     string        `yaml:"bind_addr"`
	DataDir      string        `yaml:"data_dir"`
	ApplyTimeout time.Duration `yaml:"apply_timeout"`
}

// BlobConfig configures whichever internal/store/blob.Backend Backend
// names.
type BlobConfig struct {
	Backend BlobBackend `yaml:"backend"`

	// fsblob
	Dir string `yaml:"dir"`

	// s3blob
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// QuotaConfig carries account quota and reserved-upload defaults, per
// spec.md §4.3/§4.5.
type QuotaConfig struct {
	DefaultBytes       int64         `yaml:"default_bytes"`
	ReservedUploadTTL  time.Duration `yaml:"reserved_upload_ttl"`
	LogRetentionWindow time.Duration `yaml:"log_retention_window"`
}

// TasksConfig tunes task.Worker instances per kind, per spec.md §4.8.
type TasksConfig struct {
	PollInterval  time.Duration          `yaml:"poll_interval"`
	LeaseDuration time.Duration          `yaml:"lease_duration"`
	Concurrency   map[string]int         `yaml:"concurrency"`
	BatchSize     map[string]int         `yaml:"batch_size"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses a YAML config file at path, applying defaults
// for anything left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: parse %s: %w", path, err)
	}
	cfg.withDefaults()
	return cfg, nil
}

func (c *Config) withDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = string(log.InfoLevel)
	}
	if c.Store.KV.Backend == "" {
		c.Store.KV.Backend = KVBolt
	}
	if c.Store.Blob.Backend == "" {
		c.Store.Blob.Backend = BlobFS
	}
	if c.Quota.DefaultBytes == 0 {
		c.Quota.DefaultBytes = 10 << 30 // 10 GiB
	}
	if c.Quota.ReservedUploadTTL == 0 {
		c.Quota.ReservedUploadTTL = 24 * time.Hour
	}
	if c.Quota.LogRetentionWindow == 0 {
		c.Quota.LogRetentionWindow = 30 * 24 * time.Hour
	}
	if c.Tasks.PollInterval == 0 {
		c.Tasks.PollInterval = 5 * time.Second
	}
	if c.Tasks.LeaseDuration == 0 {
		c.Tasks.LeaseDuration = 2 * time.Minute
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
}

// ApplyLogging initializes the global logger from cfg.
func (c Config) ApplyLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSONOutput,
	})
}

// RaftConfigFor translates the YAML raft section into raftkv.Config.
func (c KVConfig) RaftConfigFor() raftkv.Config {
	return raftkv.Config{
		NodeID:       c.Raft.NodeID,
		BindAddr:     c.Raft.BindAddr,
		DataDir:      c.Raft.DataDir,
		ApplyTimeout: c.Raft.ApplyTimeout,
	}
}

// BadgerOptionsFor translates the YAML badger section into badgerkv.Options.
func (c KVConfig) BadgerOptionsFor() badgerkv.Options {
	return badgerkv.Options{InMemory: c.BadgerInMemory}
}

// SQLDialectFor resolves the configured driver name to a sqlkv.Dialect.
func (c KVConfig) SQLDialectFor() (sqlkv.Dialect, error) {
	switch c.Driver {
	case "sqlite3", "":
		return sqlkv.SQLite, nil
	case "postgres":
		return sqlkv.Postgres, nil
	default:
		return nil, fmt.Errorf("config.SQLDialectFor: unknown driver %q", c.Driver)
	}
}
