package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort     = 8080
	DefaultMaxProducers = 10
	DefaultUpdateRateHz = 60
	DefaultStaleAfter   = 2 * time.Second
	DefaultEvictAfter   = 30 * time.Second
	DefaultAlpha        = 0.3
)

// Config holds the server-side configuration parsed from the `server:`
// section of config.yaml. The `feeder:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the ingest endpoint, consumer stream, REST API
	// and metrics listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// MaxProducers limits concurrent producer connections. 0 means
	// unlimited (default 10).
	MaxProducers int `yaml:"max_producers"`

	// EchoMerged, when true, writes the merged steering value back to a
	// producer after each accepted frame.
	EchoMerged bool `yaml:"echo_merged"`

	// UpdateRateHz is the consumer broadcast cadence (default 60).
	UpdateRateHz int `yaml:"update_rate_hz"`

	// Registry controls source staleness and eviction.
	Registry RegistryConfig `yaml:"registry"`

	// Merge controls per-source weights and output smoothing.
	Merge MergeConfig `yaml:"merge"`
}

// RegistryConfig controls the source registry's two-tier staleness policy.
type RegistryConfig struct {
	// StaleAfter is how long after its last sample a source stops
	// contributing to the merge. Default: 2s.
	StaleAfter time.Duration `yaml:"stale_after"`

	// EvictAfter is how long after its last sample a source is purged from
	// memory entirely. Must be >= StaleAfter. Default: 30s.
	EvictAfter time.Duration `yaml:"evict_after"`
}

// MergeConfig controls the merge engine.
type MergeConfig struct {
	// Weights maps a source ID (or ID prefix) to its merge weight.
	// Absent or empty means every source gets an equal share.
	Weights map[string]float64 `yaml:"weights"`

	// Smoothing configures the optional exponential moving average applied
	// to the consumer broadcast stream.
	Smoothing SmoothingConfig `yaml:"smoothing"`
}

// SmoothingConfig configures broadcast smoothing.
type SmoothingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Alpha in (0, 1]; higher is more responsive. Default: 0.3.
	Alpha float64 `yaml:"alpha"`
}

// UpdateInterval returns the consumer broadcast tick derived from UpdateRateHz.
func (s ServerConfig) UpdateInterval() time.Duration {
	return time.Duration(float64(time.Second) / float64(s.UpdateRateHz))
}

// Load reads and parses the config file at path, returning the server
// configuration. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     DefaultHTTPPort,
			MaxProducers: DefaultMaxProducers,
			UpdateRateHz: DefaultUpdateRateHz,
			Registry: RegistryConfig{
				StaleAfter: DefaultStaleAfter,
				EvictAfter: DefaultEvictAfter,
			},
			Merge: MergeConfig{
				Smoothing: SmoothingConfig{Alpha: DefaultAlpha},
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
// A failure here is fatal at startup: it indicates an unusable deployment.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.MaxProducers < 0 {
		return fmt.Errorf("server.max_producers must not be negative")
	}
	if s.UpdateRateHz <= 0 {
		return fmt.Errorf("server.update_rate_hz must be positive")
	}
	if s.Registry.StaleAfter <= 0 {
		return fmt.Errorf("server.registry.stale_after must be positive")
	}
	if s.Registry.EvictAfter < s.Registry.StaleAfter {
		return fmt.Errorf("server.registry.evict_after %v must be >= stale_after %v",
			s.Registry.EvictAfter, s.Registry.StaleAfter)
	}
	for id, w := range s.Merge.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("server.merge.weights[%q] = %v: want a finite non-negative number", id, w)
		}
	}
	if a := s.Merge.Smoothing.Alpha; a <= 0 || a > 1 {
		return fmt.Errorf("server.merge.smoothing.alpha %v is out of range (0, 1]", a)
	}
	return nil
}
