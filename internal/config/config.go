// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads engine configuration from gryffin.yaml with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Gryffin engine configuration
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Execution ExecutionConfig `yaml:"execution"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ModelConfig specifies collaborator model preferences
type ModelConfig struct {
	// Default is the model used for every collaborator exchange
	Default string `yaml:"default"`
}

// ExecutionConfig controls the execution engine behavior
type ExecutionConfig struct {
	// BuildTimeoutSeconds bounds build and test commands. Smoke probe
	// deadlines are fixed constants and deliberately not configurable.
	BuildTimeoutSeconds int `yaml:"build_timeout_seconds"`
	// AutoRun enables the final runnability verification pass
	AutoRun bool `yaml:"auto_run"`
	// PersistServers keeps verified dev servers running after the probe
	PersistServers bool `yaml:"persist_servers"`
}

// TelemetryConfig configures tracing output
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	CollectorURL string `yaml:"collector_url"`
	Console      bool   `yaml:"console"`
}

// DefaultConfig returns the configuration used when no gryffin.yaml exists
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Default: "gpt-4o-mini",
		},
		Execution: ExecutionConfig{
			BuildTimeoutSeconds: 300,
			AutoRun:             true,
			PersistServers:      false,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			CollectorURL: "localhost:4318",
			Console:      false,
		},
	}
}

// Load reads gryffin.yaml from the target directory, falling back to
// defaults when the file is absent. Environment variables override the
// file: GRYFFIN_MODEL, GRYFFIN_AUTO_RUN, GRYFFIN_PERSIST_SERVERS.
func Load(targetDir string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(targetDir, "gryffin.yaml")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Model.Default == "" {
		return fmt.Errorf("model.default must not be empty")
	}
	if c.Execution.BuildTimeoutSeconds <= 0 {
		return fmt.Errorf("execution.build_timeout_seconds must be positive, got %d", c.Execution.BuildTimeoutSeconds)
	}
	return nil
}

// BuildTimeout returns the build/test command timeout as a duration
func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.Execution.BuildTimeoutSeconds) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRYFFIN_MODEL"); v != "" {
		cfg.Model.Default = v
	}
	if v, ok := lookupBool("GRYFFIN_AUTO_RUN"); ok {
		cfg.Execution.AutoRun = v
	}
	if v, ok := lookupBool("GRYFFIN_PERSIST_SERVERS"); ok {
		cfg.Execution.PersistServers = v
	}
}

// lookupBool reads a truthy/falsy environment flag. Accepted truthy
// values match the original CLI flags: 1, true, yes, on.
func lookupBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
