// Package config loads specbridge.yaml.
//
// All values are optional and act as defaults for command flags; flags
// always override file values. ${VAR} and ${VAR:-default} are expanded
// before parsing and unknown keys are rejected.
package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport, evaluator and backend names.
const (
	TransportStdio     = "stdio"
	TransportWebSocket = "websocket"

	EvaluatorLua      = "lua"
	EvaluatorRegistry = "registry"

	JournalNone = "none"
	JournalFS   = "fs"
	JournalS3   = "s3"

	AdapterWebhook = "webhook"
	AdapterRedis   = "redis"
)

// Config represents a specbridge.yaml file.
type Config struct {
	BridgeID  string        `yaml:"bridge_id"`
	Transport string        `yaml:"transport"`
	Listen    string        `yaml:"listen"`
	Path      string        `yaml:"path"`
	Evaluator string        `yaml:"evaluator"`
	Browser   BrowserConfig `yaml:"browser"`
	Journal   JournalConfig `yaml:"journal"`
	Adapter   AdapterConfig `yaml:"adapter"`
	Log       LogConfig     `yaml:"log"`
}

// BrowserConfig holds browser session defaults.
type BrowserConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Headless  *bool  `yaml:"headless,omitempty"`
	ExecPath  string `yaml:"exec_path"`
	NoSandbox bool   `yaml:"no_sandbox"`
}

// IsHeadless reports the headless setting, true when unset.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// JournalConfig holds flight journal defaults.
type JournalConfig struct {
	Backend     string `yaml:"backend"`
	Dataset     string `yaml:"dataset"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Backoff Duration          `yaml:"backoff,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	// RetainFor keeps redis events readable by flight id; redis only.
	RetainFor Duration `yaml:"retain_for,omitempty"`
}

// LogConfig holds logging defaults.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML strings such as "10s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string. An empty string is zero.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration in its string form.
func (d Duration) MarshalYAML() (any, error) {
	if d.Duration == 0 {
		return "", nil
	}
	return d.String(), nil
}

// Validate checks enumerated fields. Empty values are allowed and mean
// "use the flag default".
func (c *Config) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		if value != "" && !slices.Contains(allowed, value) {
			errs = append(errs, fmt.Errorf("%s: %q is not one of %v", field, value, allowed))
		}
	}
	check("transport", c.Transport, TransportStdio, TransportWebSocket)
	check("evaluator", c.Evaluator, EvaluatorLua, EvaluatorRegistry)
	check("journal.backend", c.Journal.Backend, JournalNone, JournalFS, JournalS3)
	check("adapter.type", c.Adapter.Type, AdapterWebhook, AdapterRedis)
	check("log.level", c.Log.Level, "debug", "info", "warn", "error")

	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, errors.New("adapter.url is required when adapter.type is set"))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries))
	}
	if c.Adapter.RetainFor.Duration != 0 && c.Adapter.Type != AdapterRedis {
		errs = append(errs, errors.New("adapter.retain_for applies to the redis adapter only"))
	}
	if c.Journal.Backend == JournalS3 && c.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path (bucket[/prefix]) is required for the s3 backend"))
	}
	return errors.Join(errs...)
}
