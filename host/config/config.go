// Package config loads settings for the host tools from JSON or TOML files
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"crosscore/core"
)

// Duration is a time.Duration written as a string such as "250ms"
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// SimConfig drives crosscore-sim
type SimConfig struct {
	Demo     string   `json:"demo" toml:"demo"`
	Messages int      `json:"messages" toml:"messages"`
	Capacity int      `json:"capacity" toml:"capacity"`
	Depth    int      `json:"depth" toml:"depth"`
	Delay    Duration `json:"delay" toml:"delay"`
	Timeout  Duration `json:"timeout" toml:"timeout"`
	Pin      bool     `json:"pin" toml:"pin"`
}

// MonitorConfig drives crosscore-monitor
type MonitorConfig struct {
	Device      string   `json:"device" toml:"device"`
	Baud        int      `json:"baud" toml:"baud"`
	ReadTimeout Duration `json:"read_timeout" toml:"read_timeout"`
	Duration    Duration `json:"duration" toml:"duration"`
}

// Config is the root of a configuration file
type Config struct {
	LogLevel string        `json:"log_level" toml:"log_level"`
	Sim      SimConfig     `json:"sim" toml:"sim"`
	Monitor  MonitorConfig `json:"monitor" toml:"monitor"`
}

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Format is the encoding of a configuration file
type Format int

const (
	JSON Format = iota
	TOML
)

// FormatFor picks the format from a file name's extension
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".toml":
		return TOML, nil
	default:
		return 0, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

// Load reads, decodes and validates the file at path
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes data, applies defaults and validates the result
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config

	switch format {
	case JSON:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode json config: %w", err)
		}
	case TOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode toml config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("unknown config format %d", format)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// applyDefaults fills in missing values
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	sim := &cfg.Sim
	if sim.Demo == "" {
		sim.Demo = "spawn"
	}
	if sim.Messages == 0 {
		sim.Messages = 10000
	}
	if sim.Capacity == 0 {
		sim.Capacity = core.DefaultQueueCapacity
	}
	if sim.Depth == 0 {
		sim.Depth = 8 // RP2040 SIO FIFO
	}
	if sim.Timeout.Duration == 0 {
		sim.Timeout.Duration = 30 * time.Second
	}

	mon := &cfg.Monitor
	if mon.Device == "" {
		mon.Device = "/dev/ttyACM0"
	}
	if mon.Baud == 0 {
		mon.Baud = 115200 // USB CDC ignores it
	}
	if mon.ReadTimeout.Duration == 0 {
		mon.ReadTimeout.Duration = 100 * time.Millisecond
	}
}

// Validate rejects values the tools cannot run with
func (c *Config) Validate() error {
	sim := c.Sim
	switch {
	case sim.Messages < 0:
		return fmt.Errorf("%w: sim.messages must not be negative", ErrInvalid)
	case sim.Capacity < 2 || sim.Capacity > 1<<30:
		return fmt.Errorf("%w: sim.capacity %d, need 2..2^30 (one slot stays free)", ErrInvalid, sim.Capacity)
	case sim.Depth < 1:
		return fmt.Errorf("%w: sim.depth must be at least 1", ErrInvalid)
	case sim.Delay.Duration < 0 || sim.Timeout.Duration < 0:
		return fmt.Errorf("%w: sim durations must not be negative", ErrInvalid)
	case c.Monitor.Baud < 0:
		return fmt.Errorf("%w: monitor.baud must not be negative", ErrInvalid)
	case c.Monitor.ReadTimeout.Duration < 0 || c.Monitor.Duration.Duration < 0:
		return fmt.Errorf("%w: monitor durations must not be negative", ErrInvalid)
	}
	return nil
}
