// Package config loads the simulator's ambient configuration: trace
// verbosity and the optional persisted trace sink. Site/variable counts
// are spec-fixed constants in package transaction, not configurable
// here, since spec.md's invariants are defined in terms of them.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the simulator's top-level configuration, following the
// teacher's config.Config (config/config.go): a YAML-tagged struct with
// env-var overrides layered on top.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Trace   TraceConfig   `yaml:"trace"`
}

// LoggingConfig controls how much of the tick loop is narrated.
type LoggingConfig struct {
	Level         string `yaml:"level" env:"REPSIM_LOG_LEVEL"`
	LogDeadlocks  bool   `yaml:"log_deadlocks" env:"REPSIM_LOG_DEADLOCKS"`
	LogDrainNoops bool   `yaml:"log_drain_noops" env:"REPSIM_LOG_DRAIN_NOOPS"`
}

// TraceConfig controls the optional persisted trace sink (see
// internal/tracelog). Path == "" disables persistence entirely;
// nothing about spec.md's database-state Non-goals is implicated,
// since this only ever records the human-readable operator trace.
type TraceConfig struct {
	Path  string `yaml:"path" env:"REPSIM_TRACE_PATH"`
	Codec string `yaml:"codec" env:"REPSIM_TRACE_CODEC"`
}

// DefaultConfig returns the simulator's zero-config defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:         "info",
			LogDeadlocks:  true,
			LogDrainNoops: false,
		},
		Trace: TraceConfig{
			Path:  "",
			Codec: "zstd",
		},
	}
}

// Load reads a YAML config file at path, starting from DefaultConfig
// and overlaying whatever fields are present.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv overlays REPSIM_* environment variables onto cfg, mirroring
// the teacher's Config.LoadFromEnv (config/config.go).
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("REPSIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REPSIM_LOG_DEADLOCKS"); v != "" {
		c.Logging.LogDeadlocks = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("REPSIM_LOG_DRAIN_NOOPS"); v != "" {
		c.Logging.LogDrainNoops = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("REPSIM_TRACE_PATH"); v != "" {
		c.Trace.Path = v
	}
	if v := os.Getenv("REPSIM_TRACE_CODEC"); v != "" {
		c.Trace.Codec = v
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid logging level %q", c.Logging.Level)
	}
	switch c.Trace.Codec {
	case "none", "snappy", "lz4", "zstd", "":
	default:
		return fmt.Errorf("config: invalid trace codec %q", c.Trace.Codec)
	}
	return nil
}
