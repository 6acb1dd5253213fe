// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads leash configuration from a YAML file with
// environment variable overrides. All fields have working defaults so
// leash runs without any config file at all.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leashd/leash/internal/daemon"
	"github.com/leashd/leash/internal/supervisor"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Environment variable names recognized by loadFromEnv.
const (
	BinaryEnv  = "LEASH_BIN"
	ModeEnv    = "LEASH_MODE"
	DataDirEnv = "LEASH_DATA_DIR"
)

// Config represents the complete leash configuration.
type Config struct {
	Tool    ToolConfig   `yaml:"tool"`
	Daemon  DaemonConfig `yaml:"daemon"`
	Log     LogConfig    `yaml:"log"`
	DataDir string       `yaml:"data_dir,omitempty"`
}

// ToolConfig configures the supervised tool.
type ToolConfig struct {
	// Binary is the tool executable to launch.
	// Environment: LEASH_BIN
	// Default: codex
	Binary string `yaml:"binary,omitempty"`

	// DefaultMode is the permission mode used when --mode is not given.
	// One of: default, read-only, safe-yolo, yolo.
	// Environment: LEASH_MODE
	DefaultMode string `yaml:"default_mode,omitempty"`

	// Home overrides the tool's home directory (CODEX_HOME).
	// Empty means ~/.codex unless the caller environment already sets it.
	Home string `yaml:"home,omitempty"`
}

// DaemonConfig configures the optional leashd connection.
type DaemonConfig struct {
	// Host is the daemon address (unix:///path or tcp://host:port).
	// Environment: LEASH_HOST
	// Empty means the default socket path.
	Host string `yaml:"host,omitempty"`
}

// LogConfig configures logging output.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	// Environment: LEASH_LOG_LEVEL
	Level string `yaml:"level,omitempty"`

	// Format is the log format (text, json, auto).
	// Environment: LOG_FORMAT
	Format string `yaml:"format,omitempty"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Tool: ToolConfig{
			Binary:      "codex",
			DefaultMode: string(supervisor.ModeDefault),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads configuration from the given path, applies defaults for
// missing fields, and then applies environment overrides. An empty path
// loads pure defaults; a missing file at an explicit path is an error.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDefault loads configuration from the standard config path if the
// file exists, otherwise returns defaults with environment overrides.
func LoadDefault() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return Load("")
	}
	return Load(path)
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills in zero values so minimal configs work without
// specifying every field.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Tool.Binary == "" {
		c.Tool.Binary = defaults.Tool.Binary
	}
	if c.Tool.DefaultMode == "" {
		c.Tool.DefaultMode = defaults.Tool.DefaultMode
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv(BinaryEnv); val != "" {
		c.Tool.Binary = val
	}
	if val := os.Getenv(ModeEnv); val != "" {
		c.Tool.DefaultMode = strings.ToLower(val)
	}
	if val := os.Getenv(DataDirEnv); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv(daemon.HostEnv); val != "" {
		c.Daemon.Host = val
	}
	if val := os.Getenv("LEASH_LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Tool.Binary == "" {
		return fmt.Errorf("%w: tool.binary must not be empty", ErrInvalidConfig)
	}

	if _, err := supervisor.ParseMode(c.Tool.DefaultMode); err != nil {
		return fmt.Errorf("%w: tool.default_mode: %v", ErrInvalidConfig, err)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level must be one of debug, info, warn, error (got %q)", ErrInvalidConfig, c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json", "auto":
	default:
		return fmt.Errorf("%w: log.format must be one of text, json, auto (got %q)", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

// ResolveDataDir returns the configured data directory, falling back to
// the XDG default, and ensures it exists.
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "" {
		var err error
		dir, err = DefaultDataDir()
		if err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dir, nil
}
