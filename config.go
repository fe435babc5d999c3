package autarch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/autarch-dev/autarch/policy"
)

// Config is a serialisable representation of the engine configuration. It
// can be populated from YAML or JSON; the zero-value is useful - all nested
// fields inherit their package defaults.
type Config struct {
	Runner   RunnerConfig   `json:"runner" yaml:"runner"`
	Watchdog WatchdogConfig `json:"watchdog" yaml:"watchdog"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Queue    QueueConfig    `json:"queue" yaml:"queue"`
	Policy   *policy.Config `json:"policy,omitempty" yaml:"policy,omitempty"`
}

type RunnerConfig struct {
	WorkerCount int `json:"workers" yaml:"workers"`
}

type WatchdogConfig struct {
	PollingIntervalMs int `json:"pollingIntervalMs" yaml:"pollingIntervalMs"`
}

type DispatchConfig struct {
	// MaxRuntimeMs bounds how long a sub-agent may run before its subtask is
	// failed by the watchdog.
	MaxRuntimeMs int `json:"maxRuntimeMs" yaml:"maxRuntimeMs"`
}

type StoreConfig struct {
	// Vendor selects the subtask store backend: "memory" or "sqlite".
	Vendor string `json:"vendor" yaml:"vendor"`
	// DSN is the sqlite data source, e.g. "file:autarch.db".
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type QueueConfig struct {
	// Vendor selects the queue backend: "memory" or "fs".
	Vendor string `json:"vendor" yaml:"vendor"`
	// BasePath is the queue root for the fs vendor.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`
}

// DefaultConfig returns a Config populated with the same default values the
// constructors use. Callers may modify the returned struct before passing it
// to New via WithConfig.
func DefaultConfig() *Config {
	return &Config{
		Runner:   RunnerConfig{WorkerCount: 5},
		Watchdog: WatchdogConfig{PollingIntervalMs: 30_000},
		Dispatch: DispatchConfig{MaxRuntimeMs: int(15 * time.Minute / time.Millisecond)},
		Store:    StoreConfig{Vendor: "memory"},
		Queue:    QueueConfig{Vendor: "memory"},
	}
}

// LoadConfig reads a YAML configuration file, applying defaults for any
// omitted field.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %v: %w", path, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Runner.WorkerCount <= 0 {
		return fmt.Errorf("runner.workers must be > 0")
	}
	if c.Watchdog.PollingIntervalMs <= 0 {
		return fmt.Errorf("watchdog.pollingIntervalMs must be > 0")
	}
	if c.Dispatch.MaxRuntimeMs <= 0 {
		return fmt.Errorf("dispatch.maxRuntimeMs must be > 0")
	}
	switch c.Store.Vendor {
	case "", "memory":
	case "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite vendor")
		}
	default:
		return fmt.Errorf("unsupported store vendor %q", c.Store.Vendor)
	}
	switch c.Queue.Vendor {
	case "", "memory":
	case "fs":
	default:
		return fmt.Errorf("unsupported queue vendor %q", c.Queue.Vendor)
	}
	return nil
}
