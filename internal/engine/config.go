package engine

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the four knobs spec.md §4.4 recognizes. Zero values are
// replaced by DefaultConfig's defaults in Open.
type Config struct {
	DataDirectory            string `yaml:"data_directory"`
	MemtableFlushThreshold   int    `yaml:"memtable_flush_threshold"`
	CheckpointIntervalMS     int64  `yaml:"checkpoint_interval_ms"`
	MaxSSTablesBeforeCompact int    `yaml:"max_sstables_before_compact"`
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDirectory:            dataDir,
		MemtableFlushThreshold:   10000,
		CheckpointIntervalMS:     60000,
		MaxSSTablesBeforeCompact: 10,
	}
}

// CheckpointInterval returns the checkpoint interval as a time.Duration.
func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalMS) * time.Millisecond
}

// withDefaults fills any zero-valued field with DefaultConfig's value,
// leaving explicitly configured fields untouched.
func (c Config) withDefaults() Config {
	d := DefaultConfig(c.DataDirectory)
	if c.MemtableFlushThreshold <= 0 {
		c.MemtableFlushThreshold = d.MemtableFlushThreshold
	}
	if c.CheckpointIntervalMS <= 0 {
		c.CheckpointIntervalMS = d.CheckpointIntervalMS
	}
	if c.MaxSSTablesBeforeCompact <= 0 {
		c.MaxSSTablesBeforeCompact = d.MaxSSTablesBeforeCompact
	}
	return c
}

// LoadConfig reads a YAML config file. Config loading is additive: the
// engine works fine with a zero-value Config plus DataDirectory set
// directly, without ever touching a file on disk.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
