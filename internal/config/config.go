// Package config holds cadence runtime settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds settings shared by the cadence commands.
type Config struct {
	FPS       int    `yaml:"fps"`        // Frame rate of the real-time driver and headless stepping
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json, auto
	DebugAddr string `yaml:"debug_addr"` // Listen address of the debug API ("" disables it)
	TraceDB   string `yaml:"trace_db"`   // SQLite trace database ("" disables tracing, ":memory:" for testing)
	Seed      int64  `yaml:"seed"`       // Random seed for the demo and scenarios (0 picks one from the clock)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FPS:       60,
		LogLevel:  "info",
		LogFormat: "auto",
	}
}

// Load overlays the YAML file at path onto DefaultConfig. A missing file is
// not an error when path is empty.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.FPS <= 0 || c.FPS > 1000 {
		errs = append(errs, fmt.Errorf("fps must be in 1..1000, got %d", c.FPS))
	}
	switch c.LogFormat {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text, json or auto, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// FrameInterval returns the wall-clock time between frames.
func (c Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(max(c.FPS, 1))
}

// FrameStep returns the simulated seconds per headless frame.
func (c Config) FrameStep() float64 {
	return 1 / float64(max(c.FPS, 1))
}
