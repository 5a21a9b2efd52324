package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

// Workloads a process can run
const (
	WorkloadEcho      = "echo"
	WorkloadUniqueIDs = "unique-ids"
)

// Config represents the node process configuration. None of it changes the
// wire protocol; the defaults match a plain Maelstrom binary.
type Config struct {
	// Workload selects the node implementation
	Workload string `json:"workload" yaml:"workload"`

	// Logging settings
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFile   string `json:"log_file" yaml:"log_file"`
	LogFormat string `json:"log_format" yaml:"log_format"` // "json", "text"

	// Runtime settings
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// Id generation settings
	NodeIDPrefix    string        `json:"node_id_prefix" yaml:"node_id_prefix"`
	RolloverBackoff time.Duration `json:"rollover_backoff" yaml:"rollover_backoff"`
	StateDir        string        `json:"state_dir" yaml:"state_dir"` // empty disables checkpoints
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Workload: WorkloadEcho,

		LogLevel:  "info",
		LogFile:   "",
		LogFormat: "text",

		QueueSize: 1024,

		NodeIDPrefix:    "n",
		RolloverBackoff: time.Millisecond,
		StateDir:        "",
	}
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	config := DefaultConfig()

	if filename == "" {
		return config, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return config, nil
}

// LoadFromEnv overrides config with MAELSTROM_* environment variables.
// Values that fail to parse are ignored.
func LoadFromEnv(config *Config) {
	if val := os.Getenv("MAELSTROM_WORKLOAD"); val != "" {
		config.Workload = val
	}

	if val := os.Getenv("MAELSTROM_LOG_LEVEL"); val != "" {
		config.LogLevel = strings.ToLower(val)
	}

	if val := os.Getenv("MAELSTROM_LOG_FORMAT"); val != "" {
		config.LogFormat = strings.ToLower(val)
	}

	if val := os.Getenv("MAELSTROM_LOG_FILE"); val != "" {
		config.LogFile = val
	}

	if val := os.Getenv("MAELSTROM_QUEUE_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.QueueSize = size
		}
	}

	if val := os.Getenv("MAELSTROM_STATE_DIR"); val != "" {
		config.StateDir = val
	}

	if val := os.Getenv("MAELSTROM_NODE_PREFIX"); val != "" {
		config.NodeIDPrefix = val
	}
}

// SaveToFile writes the configuration as YAML or JSON depending on the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		content []byte
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		content, err = yaml.Marshal(c)
	default:
		content, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Workload {
	case WorkloadEcho, WorkloadUniqueIDs:
	default:
		return fmt.Errorf("invalid workload: %q (valid: %v)", c.Workload, []string{WorkloadEcho, WorkloadUniqueIDs})
	}

	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	validLevel := false
	for _, level := range validLevels {
		if c.LogLevel == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.LogLevel, validLevels)
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.LogFormat)
	}

	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}

	if c.RolloverBackoff <= 0 {
		return fmt.Errorf("rollover backoff must be positive")
	}

	return nil
}

// HCLogLevel maps LogLevel onto the logger's level
func (c *Config) HCLogLevel() hclog.Level {
	level := hclog.LevelFromString(c.LogLevel)
	if level == hclog.NoLevel {
		return hclog.Info
	}
	return level
}

// JSONLog reports whether diagnostics should be written as JSON lines
func (c *Config) JSONLog() bool {
	return c.LogFormat == "json"
}

// CheckpointPath returns the checkpoint database for nodeID, or "" when
// checkpoints are disabled.
func (c *Config) CheckpointPath(nodeID string) string {
	if c.StateDir == "" {
		return ""
	}
	return filepath.Join(c.StateDir, nodeID+".db")
}

// String returns a string representation of the config
func (c *Config) String() string {
	content, _ := json.MarshalIndent(c, "", "  ")
	return string(content)
}
