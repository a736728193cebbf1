// Package config loads the relay configuration file: dispatcher tuning,
// per-provider connection settings, rate limits and health schedules, and
// the history store location.
//
// Values may reference environment variables with ${VAR} syntax; expansion
// happens before parsing so credentials stay out of the file itself.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillworks/relay"
	"github.com/quillworks/relay/dispatch"
	"github.com/quillworks/relay/provider"
)

// Config is the root of the relay configuration file.
type Config struct {
	Dispatcher DispatcherConfig          `yaml:"dispatcher"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	History    HistoryConfig             `yaml:"history"`
	Telemetry  TelemetryConfig           `yaml:"telemetry"`
}

// DispatcherConfig tunes the worker pool and retry backoff.
type DispatcherConfig struct {
	Workers            int `yaml:"workers"`
	DefaultMaxAttempts int `yaml:"default_max_attempts"`
	BackoffBaseMS      int `yaml:"backoff_base_ms"`
	BackoffMaxMS       int `yaml:"backoff_max_ms"`
	BackoffJitterMS    int `yaml:"backoff_jitter_ms"`
}

// ProviderConfig describes one provider instance, keyed by its tag.
type ProviderConfig struct {
	Kind           string  `yaml:"kind"`
	Endpoint       string  `yaml:"endpoint"`
	Token          string  `yaml:"token"`
	Backend        string  `yaml:"backend"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	TimeoutMS      int     `yaml:"timeout_ms"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	RateBurst      int     `yaml:"rate_burst"`
	HealthSchedule string  `yaml:"health_schedule"`
}

// HistoryConfig locates the execution history store.
type HistoryConfig struct {
	// Path is the SQLite file path. Empty selects the in-memory store.
	Path string `yaml:"path"`
}

// TelemetryConfig configures the optional OTLP trace exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads, env-expands, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("config: reading file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses configuration bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required")
	}
	for tag, p := range c.Providers {
		switch p.Kind {
		case provider.KindIssueTracker, provider.KindModel:
		case "":
			return fmt.Errorf("config: provider %q: kind is required", tag)
		default:
			return fmt.Errorf("config: provider %q: unknown kind %q", tag, p.Kind)
		}
		if p.HealthSchedule != "" {
			if _, err := provider.ParseHealthSchedule(p.HealthSchedule); err != nil {
				return fmt.Errorf("config: provider %q: %w", tag, err)
			}
		}
	}
	return nil
}

// ProviderSettings converts the provider entries into adapter settings,
// sorted by tag for deterministic construction order.
func (c *Config) ProviderSettings() []provider.Settings {
	tags := make([]string, 0, len(c.Providers))
	for tag := range c.Providers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	out := make([]provider.Settings, 0, len(tags))
	for _, tag := range tags {
		p := c.Providers[tag]
		out = append(out, provider.Settings{
			Tag:       relay.Provider(tag),
			Kind:      p.Kind,
			Endpoint:  p.Endpoint,
			Token:     p.Token,
			Backend:   p.Backend,
			APIKey:    p.APIKey,
			Model:     p.Model,
			TimeoutMS: p.TimeoutMS,
		})
	}
	return out
}

// RateLimits collects the configured per-provider rate limits.
func (c *Config) RateLimits() map[relay.Provider]dispatch.RateLimit {
	out := make(map[relay.Provider]dispatch.RateLimit)
	for tag, p := range c.Providers {
		if p.RatePerSecond > 0 {
			out[relay.Provider(tag)] = dispatch.RateLimit{
				PerSecond: p.RatePerSecond,
				Burst:     p.RateBurst,
			}
		}
	}
	return out
}

// HealthSchedules collects the configured per-provider probe schedules.
func (c *Config) HealthSchedules() map[relay.Provider]string {
	out := make(map[relay.Provider]string)
	for tag, p := range c.Providers {
		if p.HealthSchedule != "" {
			out[relay.Provider(tag)] = p.HealthSchedule
		}
	}
	return out
}

// Backoff converts the dispatcher backoff settings into a policy.
// Zero values fall back to the dispatcher's defaults.
func (c *Config) Backoff() dispatch.BackoffPolicy {
	return dispatch.BackoffPolicy{
		Base:   time.Duration(c.Dispatcher.BackoffBaseMS) * time.Millisecond,
		Max:    time.Duration(c.Dispatcher.BackoffMaxMS) * time.Millisecond,
		Jitter: time.Duration(c.Dispatcher.BackoffJitterMS) * time.Millisecond,
	}
}
