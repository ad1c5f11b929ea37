// Package config handles parsing and validation of the interception layer's
// ambient configuration. Rule content is not configured here; it arrives
// through the Install entry point.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable pointing at an optional
// configuration file inside the host process.
const EnvVar = "WSFILTER_CONFIG"

// Config holds everything tunable about the layer itself.
type Config struct {
	TargetModule   string        `yaml:"target_module"`
	PollInterval   time.Duration `yaml:"-"`
	PollIntervalMS int           `yaml:"poll_interval_ms"`
	LogPath        string        `yaml:"log_path"`
	LogLevel       string        `yaml:"log_level"`

	// ExtraRules are appended after every successful rule configuration,
	// behind the caller's own rules so those keep precedence.
	ExtraRules []string `yaml:"extra_rules"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		TargetModule: "ws2_32.dll",
		PollInterval: time.Second,
		LogLevel:     "info",
	}
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML data, filling defaults for anything
// unset.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.TargetModule == "" {
		return nil, fmt.Errorf("target_module must not be empty")
	}

	if cfg.PollIntervalMS < 0 {
		return nil, fmt.Errorf("poll_interval_ms must not be negative")
	}
	if cfg.PollIntervalMS > 0 {
		cfg.PollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}

	return cfg, nil
}

// FromEnv loads the file named by EnvVar, falling back to defaults when
// the variable is unset or the file is unreadable. Injected processes have
// no command line of ours; the environment is the only channel.
func FromEnv() *Config {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}
