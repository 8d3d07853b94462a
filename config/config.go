// Package config loads codai configuration from YAML or TOML files and
// watches them for changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("30s", "5m")
// in both YAML and TOML files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a string", value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

// AgentConfig carries the operator controlled flags of one agent. Nil fields
// leave the registry value untouched.
type AgentConfig struct {
	Enabled *bool `yaml:"enabled,omitempty" toml:"enabled,omitempty"`
	Healthy *bool `yaml:"healthy,omitempty" toml:"healthy,omitempty"`
}

// SchedulerConfig configures retries, backoff and timeouts.
type SchedulerConfig struct {
	MaxRetries     int      `yaml:"max_retries" toml:"max_retries"`
	BaseBackoff    Duration `yaml:"base_backoff" toml:"base_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff" toml:"max_backoff"`
	DefaultTimeout Duration `yaml:"default_timeout" toml:"default_timeout"`
	EventBuffer    int      `yaml:"event_buffer" toml:"event_buffer"`
}

// GraphConfig configures the knowledge graph.
type GraphConfig struct {
	// ContextDepth is the neighbourhood depth handed to agents as context.
	ContextDepth int `yaml:"context_depth" toml:"context_depth"`
	EventBuffer  int `yaml:"event_buffer" toml:"event_buffer"`
}

// StorageConfig selects the snapshot persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // memory, file or sqlite
	Path   string `yaml:"path,omitempty" toml:"path,omitempty"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format,omitempty" toml:"format,omitempty"` // json, text or empty for auto
}

// ModelConfig selects the language model behind the default roster.
type ModelConfig struct {
	Provider    string  `yaml:"provider" toml:"provider"` // mock, anthropic or openai
	Name        string  `yaml:"name,omitempty" toml:"name,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty" toml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
}

// Config is the root configuration document.
type Config struct {
	DefaultAgent string                 `yaml:"default_agent" toml:"default_agent"`
	Agents       map[string]AgentConfig `yaml:"agents,omitempty" toml:"agents,omitempty"`

	// Pipelines defines composite agents running the listed agents in order.
	// Pipelines are registered at startup and not reloaded.
	Pipelines map[string][]string `yaml:"pipelines,omitempty" toml:"pipelines,omitempty"`

	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler"`
	Graph     GraphConfig     `yaml:"graph" toml:"graph"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Model     ModelConfig     `yaml:"model" toml:"model"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultAgent: "planner",
		Agents:       map[string]AgentConfig{},
		Scheduler: SchedulerConfig{
			MaxRetries:     3,
			BaseBackoff:    Duration(500 * time.Millisecond),
			MaxBackoff:     Duration(30 * time.Second),
			DefaultTimeout: Duration(5 * time.Minute),
			EventBuffer:    256,
		},
		Graph: GraphConfig{
			ContextDepth: 2,
			EventBuffer:  256,
		},
		Storage: StorageConfig{Driver: "memory"},
		Log:     LogConfig{Level: "info"},
		Model:   ModelConfig{Provider: "mock", Temperature: 0.7},
	}
}

// Load reads the file at path on top of Default. The format is chosen by
// extension: .yaml, .yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data, Format(path))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Format returns "yaml" or "toml" for path, or "" for unknown extensions.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}

// Parse decodes data in the given format on top of Default and validates the
// result. Unknown keys are rejected.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()

	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.DefaultAgent == "" {
		errs = append(errs, errors.New("default_agent must not be empty"))
	}
	if c.Scheduler.MaxRetries < 0 {
		errs = append(errs, errors.New("scheduler.max_retries must not be negative"))
	}
	if c.Scheduler.BaseBackoff < 0 || c.Scheduler.MaxBackoff < 0 || c.Scheduler.DefaultTimeout < 0 {
		errs = append(errs, errors.New("scheduler durations must not be negative"))
	}
	if c.Scheduler.MaxBackoff > 0 && c.Scheduler.BaseBackoff > c.Scheduler.MaxBackoff {
		errs = append(errs, errors.New("scheduler.base_backoff exceeds scheduler.max_backoff"))
	}
	for _, id := range slices.Sorted(maps.Keys(c.Pipelines)) {
		steps := c.Pipelines[id]
		switch {
		case strings.TrimSpace(id) == "":
			errs = append(errs, errors.New("pipelines: id must not be empty"))
		case len(steps) == 0:
			errs = append(errs, fmt.Errorf("pipelines.%s: at least one step is required", id))
		case slices.Contains(steps, id):
			errs = append(errs, fmt.Errorf("pipelines.%s: must not include itself", id))
		}
	}
	if c.Graph.ContextDepth < 1 || c.Graph.ContextDepth > 5 {
		errs = append(errs, fmt.Errorf("graph.context_depth must be within 1..5, got %d", c.Graph.ContextDepth))
	}

	switch c.Storage.Driver {
	case "memory":
	case "file", "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Model.Provider {
	case "mock", "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown model.provider %q", c.Model.Provider))
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// YAML renders the configuration as YAML.
func (c *Config) YAML() ([]byte, error) { return yaml.Marshal(c) }

// TOML renders the configuration as TOML.
func (c *Config) TOML() ([]byte, error) { return toml.Marshal(c) }
