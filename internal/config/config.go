// Copyright 2025 The Relay Authors
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

// Package config loads and persists the engine configuration.
//
// Configuration lives at the XDG config path (~/.config/relay/config.yaml)
// and individual values can be overridden via RELAY_* environment variables.
package config

import (
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/relayci/relay/pkg/errors"
)

// Default engine limits.
const (
	// DefaultMaxParallel is the default number of concurrently executing
	// matrix cells across all jobs.
	DefaultMaxParallel = 4

	// DefaultStepTimeout is the default per-step timeout in seconds.
	DefaultStepTimeout = 1800
)

// Config holds the engine configuration.
type Config struct {
	// MaxParallel limits concurrently executing matrix cells across all jobs.
	MaxParallel int `yaml:"max_parallel"`

	// StepTimeout is the default per-step timeout in seconds.
	// Steps can override this with their own timeout field.
	StepTimeout int `yaml:"step_timeout"`

	// KeepWorkspaces disables removal of per-cell workspace directories
	// after a run completes.
	KeepWorkspaces bool `yaml:"keep_workspaces"`

	// RunnerLabel is the label this engine satisfies for runs-on matching.
	// Defaults to the host operating system (e.g., "linux", "darwin").
	RunnerLabel string `yaml:"runner_label"`

	// LogLevel sets the minimum log level (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat sets the log output format (json, text).
	LogFormat string `yaml:"log_format"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		MaxParallel: DefaultMaxParallel,
		StepTimeout: DefaultStepTimeout,
		RunnerLabel: runtime.GOOS,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// Load reads the configuration file at path, falling back to the XDG config
// path when path is empty. A missing file is not an error; defaults are
// returned. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, &errors.ConfigError{Reason: "cannot resolve config path", Cause: err}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, &errors.ConfigError{Reason: "cannot read config file", Cause: err}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &errors.ConfigError{Reason: "cannot parse config file", Cause: err}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, falling back to the XDG config path
// when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return &errors.ConfigError{Reason: "cannot resolve config path", Cause: err}
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return &errors.ConfigError{Reason: "cannot marshal config", Cause: err}
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.MaxParallel < 1 {
		return &errors.ConfigError{
			Key:    "max_parallel",
			Reason: "must be at least 1",
		}
	}
	if c.StepTimeout < 1 {
		return &errors.ConfigError{
			Key:    "step_timeout",
			Reason: "must be at least 1 second",
		}
	}
	return nil
}

// applyEnv applies RELAY_* environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("RELAY_MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
	if v := os.Getenv("RELAY_STEP_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StepTimeout = n
		}
	}
	if v := os.Getenv("RELAY_KEEP_WORKSPACES"); v == "true" || v == "1" {
		c.KeepWorkspaces = true
	}
	if v := os.Getenv("RELAY_RUNNER_LABEL"); v != "" {
		c.RunnerLabel = v
	}
}
