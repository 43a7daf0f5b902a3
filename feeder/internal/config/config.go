package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultServerURL  = "ws://localhost:8080/ws"
	DefaultSource     = "feeder"
	DefaultRateHz     = 30
	DefaultPattern    = "sine"
	DefaultAmplitude  = 1.0
	DefaultPeriod     = 4 * time.Second
	DefaultBufferSize = 64
)

// Config is the top-level configuration for the feeder. The `server:` key in
// the same file is ignored.
type Config struct {
	Feeder FeederConfig `yaml:"feeder"`
}

// FeederConfig holds all feeder-side settings.
type FeederConfig struct {
	// ServerURL is the WebSocket URL of the steermux-server ingest
	// endpoint, e.g. ws://localhost:8080/ws.
	ServerURL string `yaml:"server_url"`

	// Source is the source ID stamped on every frame, e.g. "webcam".
	Source string `yaml:"source"`

	// RateHz is how many samples per second to emit.
	RateHz int `yaml:"rate_hz"`

	// Pattern selects the signal source: sine | sweep | center | stdin.
	Pattern string `yaml:"pattern"`

	// Amplitude scales the generated waveform, in (0, 1].
	Amplitude float64 `yaml:"amplitude"`

	// Period is the waveform cycle length for sine and sweep.
	Period time.Duration `yaml:"period"`

	// BufferSize is the maximum number of samples held in memory while the
	// server is unreachable. The oldest sample is dropped when full.
	BufferSize int `yaml:"buffer_size"`
}

// SendInterval returns the tick between samples derived from RateHz.
func (f FeederConfig) SendInterval() time.Duration {
	return time.Duration(float64(time.Second) / float64(f.RateHz))
}

// Load reads and parses the config file at path, returning the feeder
// configuration. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("feeder config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("feeder config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("feeder config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Feeder: FeederConfig{
			ServerURL:  DefaultServerURL,
			Source:     DefaultSource,
			RateHz:     DefaultRateHz,
			Pattern:    DefaultPattern,
			Amplitude:  DefaultAmplitude,
			Period:     DefaultPeriod,
			BufferSize: DefaultBufferSize,
		},
	}
}

func validate(cfg *Config) error {
	f := cfg.Feeder
	if !strings.HasPrefix(f.ServerURL, "ws://") && !strings.HasPrefix(f.ServerURL, "wss://") {
		return fmt.Errorf("feeder.server_url %q must start with ws:// or wss://", f.ServerURL)
	}
	if f.Source == "" {
		return fmt.Errorf("feeder.source must not be empty")
	}
	if f.RateHz <= 0 {
		return fmt.Errorf("feeder.rate_hz must be positive")
	}
	switch f.Pattern {
	case "sine", "sweep", "center", "stdin":
	default:
		return fmt.Errorf("feeder.pattern %q unknown: want sine|sweep|center|stdin", f.Pattern)
	}
	if math.IsNaN(f.Amplitude) || f.Amplitude <= 0 || f.Amplitude > 1 {
		return fmt.Errorf("feeder.amplitude %v is out of range (0, 1]", f.Amplitude)
	}
	if f.Period <= 0 {
		return fmt.Errorf("feeder.period must be positive")
	}
	if f.BufferSize <= 0 {
		return fmt.Errorf("feeder.buffer_size must be positive")
	}
	return nil
}
