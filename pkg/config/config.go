// Package config loads and persists the YAML configuration of lantzd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type StateConfig struct {
	// Path of the set point journal; empty disables it
	Path string `yaml:"path"`
}

type RedisConfig struct {
	// Addr of the redis server; empty disables publishing of stream batches
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Instrument selects a driver and the link it talks over
type Instrument struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`

	// Link is a serial device, socket://host:port, a COM port number or sim://
	Link    string        `yaml:"link"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type Config struct {
	Log         *LogConfig    `yaml:"log"`
	HTTP        *HTTPConfig   `yaml:"http"`
	State       *StateConfig  `yaml:"state"`
	Redis       *RedisConfig  `yaml:"redis"`
	Instruments []*Instrument `yaml:"instruments"`

	filepath string
}

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir)
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), ConfigFile)
}

// NewDefaultConfig returns a configuration with one simulated instrument of
// each driver, stored at path (DefaultConfigPath when empty)
func NewDefaultConfig(path string) *Config {
	if path == "" {
		path = DefaultConfigPath()
	}
	return &Config{
		Log: &LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		HTTP: &HTTPConfig{
			Addr: DefaultHTTPAddr,
		},
		State: &StateConfig{
			Path: filepath.Join(DefaultConfigDir(), DefaultStateFile),
		},
		Redis: &RedisConfig{
			Channel: DefaultRedisChannel,
		},
		Instruments: []*Instrument{
			{Name: "daq", Driver: "labjack.t7", Link: "sim://"},
			{Name: "laser", Driver: "laserquantum.ventus", Link: "sim://"},
			{Name: "focus", Driver: "prior.nanoscanz", Link: "sim://"},
			{Name: "zstage", Driver: "prior.proscaniii", Link: "sim://"},
		},
		filepath: path,
	}
}

// Path returns the file the configuration is loaded from and persisted to
func (c *Config) Path() string {
	return c.filepath
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return os.WriteFile(c.filepath, data, 0644)
}

// LoadConfig reads path over the defaults and validates the result
func LoadConfig(path string) (*Config, error) {
	c := NewDefaultConfig(path)
	data, err := os.ReadFile(c.filepath)
	if err != nil {
		return nil, err
	}
	c.Instruments = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.filepath, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that instruments are named uniquely and have a driver
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, inst := range c.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("instrument %d: missing name", i)
		}
		if inst.Driver == "" {
			return fmt.Errorf("instrument %s: missing driver", inst.Name)
		}
		if seen[inst.Name] {
			return fmt.Errorf("instrument %s: duplicate name", inst.Name)
		}
		seen[inst.Name] = true
	}
	return nil
}

// Instrument returns the instrument called name
func (c *Config) Instrument(name string) (*Instrument, bool) {
	for _, inst := range c.Instruments {
		if inst.Name == name {
			return inst, true
		}
	}
	return nil, false
}
