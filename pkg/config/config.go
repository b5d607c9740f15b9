package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stratadb-labs/strata-core/pkg/types"
	"github.com/stratadb-labs/strata-core/pkg/wal"
)

// Durability mirrors wal.Durability as a YAML/CLI-friendly string enum.
type Durability string

const (
	DurabilityNone    Durability = "none"
	DurabilityStrict  Durability = "strict"
	DurabilityBatched Durability = "batched"
)

func (d Durability) toWAL() wal.Durability {
	switch d {
	case DurabilityStrict:
		return wal.DurabilityStrict
	case DurabilityBatched:
		return wal.DurabilityBatched
	default:
		return wal.DurabilityNone
	}
}

// Config is the frozen result of applying Options (or loading YAML) to
// open a database. The zero value is not valid; use New or LoadFile.
type Config struct {
	Path       string
	Ephemeral  bool
	Temp       bool
	Durability Durability
	IntervalMs int
	BatchSize  int
	ShardCount int
	DefaultRun string
}

// fileConfig is the YAML-serializable shape of Config (exported field
// names would leak Go idiom into the file format).
type fileConfig struct {
	Path       string `yaml:"path"`
	Ephemeral  bool   `yaml:"ephemeral"`
	Temp       bool   `yaml:"temp"`
	Durability string `yaml:"durability"`
	IntervalMs int    `yaml:"interval_ms"`
	BatchSize  int    `yaml:"batch_size"`
	ShardCount int    `yaml:"shard_count"`
	DefaultRun string `yaml:"default_run"`
}

// Option configures a Config under construction.
type Option func(*Config) error

func defaults() Config {
	return Config{
		Durability: DurabilityBatched,
		IntervalMs: 50,
		BatchSize:  64,
		ShardCount: 32,
		DefaultRun: types.DefaultRunID.Name,
	}
}

// WithPath sets the on-disk data directory. Mutually exclusive with
// WithEphemeral.
func WithPath(path string) Option {
	return func(c *Config) error {
		if c.Ephemeral {
			return types.New(types.KindInvalidInput, nil, "WithPath cannot combine with WithEphemeral")
		}
		c.Path = path
		return nil
	}
}

// WithEphemeral opens an in-memory-only database: no WAL, no
// snapshots, nothing survives process exit.
func WithEphemeral() Option {
	return func(c *Config) error {
		if c.Path != "" {
			return types.New(types.KindInvalidInput, nil, "WithEphemeral cannot combine with WithPath")
		}
		c.Ephemeral = true
		return nil
	}
}

// WithTemp opens a database rooted at a process-local scratch
// directory, removed on close (spec.md §6.3).
func WithTemp() Option {
	return func(c *Config) error {
		c.Temp = true
		return nil
	}
}

// WithDurability sets the WAL durability mode. intervalMs and
// batchSize apply only to DurabilityBatched; pass 0 for either to keep
// the default.
func WithDurability(mode Durability, intervalMs, batchSize int) Option {
	return func(c *Config) error {
		c.Durability = mode
		if intervalMs > 0 {
			c.IntervalMs = intervalMs
		}
		if batchSize > 0 {
			c.BatchSize = batchSize
		}
		return nil
	}
}

// WithShardCount sets the MVCC store's shard count.
func WithShardCount(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return types.New(types.KindInvalidInput, nil, "shard count must be > 0")
		}
		c.ShardCount = n
		return nil
	}
}

// WithDefaultRunName sets the name of the run implicit commands
// resolve to when no RunId is given.
func WithDefaultRunName(name string) Option {
	return func(c *Config) error {
		c.DefaultRun = name
		return nil
	}
}

// New builds a Config by applying opts over the package defaults.
func New(opts ...Option) (Config, error) {
	cfg := defaults()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if !cfg.Ephemeral && cfg.Path == "" && !cfg.Temp {
		return Config{}, types.New(types.KindInvalidInput, nil, "one of WithPath, WithEphemeral, or WithTemp is required")
	}
	return cfg, nil
}

// LoadFile reads a YAML config file, applying package defaults for any
// omitted field, then the same validation New performs.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, types.Wrap(types.KindIoError, nil, err)
	}
	fc := fileConfig{}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, types.Wrap(types.KindInvalidInput, nil, err)
	}

	cfg := defaults()
	cfg.Path = fc.Path
	cfg.Ephemeral = fc.Ephemeral
	cfg.Temp = fc.Temp
	if fc.Durability != "" {
		cfg.Durability = Durability(fc.Durability)
	}
	if fc.IntervalMs > 0 {
		cfg.IntervalMs = fc.IntervalMs
	}
	if fc.BatchSize > 0 {
		cfg.BatchSize = fc.BatchSize
	}
	if fc.ShardCount > 0 {
		cfg.ShardCount = fc.ShardCount
	}
	if fc.DefaultRun != "" {
		cfg.DefaultRun = fc.DefaultRun
	}

	if !cfg.Ephemeral && cfg.Path == "" && !cfg.Temp {
		return Config{}, types.New(types.KindInvalidInput, nil, "one of path, ephemeral, or temp is required")
	}
	return cfg, nil
}

// WALConfig derives the wal.Config this Config implies.
func (c Config) WALConfig() wal.Config {
	return wal.Config{
		Mode:       c.Durability.toWAL(),
		IntervalMs: c.IntervalMs,
		BatchSize:  c.BatchSize,
	}
}
