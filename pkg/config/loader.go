package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// yamlDoc mirrors conductor.yaml's shape for unmarshaling. Fields use
// pointers where absence (vs. zero value) must be distinguishable from
// "user explicitly set this to zero/empty" before merging over defaults.
type yamlDoc struct {
	Concurrency *yamlConcurrency `yaml:"concurrency"`
	Processor   *yamlProcessor   `yaml:"processor"`
	Retention   *yamlRetention   `yaml:"retention"`
}

type yamlConcurrency struct {
	GlobalLimit Limit              `yaml:"global_limit"`
	AgentLimits map[string]Limit   `yaml:"agent_limits"`
	Queue       *yamlQueueBehavior `yaml:"queue"`
}

type yamlQueueBehavior struct {
	Enabled         *bool  `yaml:"enabled"`
	ResumeOnRestart *bool  `yaml:"resume_on_restart"`
	ResumePrompt    string `yaml:"resume_prompt"`
}

type yamlProcessor struct {
	FallbackPollInterval string `yaml:"fallback_poll_interval"`
	ClaimBackoff         string `yaml:"claim_backoff"`
}

type yamlRetention struct {
	QueueEntryDays           int    `yaml:"queue_entry_days"`
	InterruptedExecutionDays int    `yaml:"interrupted_execution_days"`
	Schedule                 string `yaml:"schedule"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load conductor.yaml from configDir (missing file falls back to defaults)
//  2. Expand environment variables
//  3. Parse YAML
//  4. Merge user-defined configuration over built-in defaults
//  5. Validate all configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration initialized successfully",
		"global_limit", cfg.Concurrency.GlobalLimit.String(),
		"agent_limits", len(cfg.Concurrency.AgentLimits),
		"queue_enabled", cfg.Concurrency.Queue.Enabled)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	path := filepath.Join(configDir, "conductor.yaml")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("conductor.yaml not found, using built-in defaults", "path", path)
			return Default(), nil
		}
		return nil, NewLoadError(path, err)
	}

	data = ExpandEnv(data)

	var doc yamlDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewLoadError(path, err)
	}

	cfg := Default()
	if err := applyYAML(cfg, &doc); err != nil {
		return nil, NewLoadError(path, err)
	}

	return cfg, nil
}

// applyYAML merges the parsed document onto the defaults, field by field,
// so an omitted section (or omitted field within a present section) keeps
// its built-in value rather than being zeroed out by a blind mergo pass
// over the whole struct.
func applyYAML(cfg *Config, doc *yamlDoc) error {
	if c := doc.Concurrency; c != nil {
		if c.GlobalLimit != (Limit{}) {
			cfg.Concurrency.GlobalLimit = c.GlobalLimit
		}
		if len(c.AgentLimits) > 0 {
			if err := mergo.Merge(&cfg.Concurrency.AgentLimits, c.AgentLimits, mergo.WithOverride); err != nil {
				return fmt.Errorf("failed to merge agent_limits: %w", err)
			}
		}
		if q := c.Queue; q != nil {
			if q.Enabled != nil {
				cfg.Concurrency.Queue.Enabled = *q.Enabled
			}
			if q.ResumeOnRestart != nil {
				cfg.Concurrency.Queue.ResumeOnRestart = *q.ResumeOnRestart
			}
			if q.ResumePrompt != "" {
				cfg.Concurrency.Queue.ResumePrompt = q.ResumePrompt
			}
		}
	}

	if p := doc.Processor; p != nil {
		if p.FallbackPollInterval != "" {
			d, err := parseDuration(p.FallbackPollInterval)
			if err != nil {
				return fmt.Errorf("processor.fallback_poll_interval: %w", err)
			}
			cfg.Processor.FallbackPollInterval = d
		}
		if p.ClaimBackoff != "" {
			d, err := parseDuration(p.ClaimBackoff)
			if err != nil {
				return fmt.Errorf("processor.claim_backoff: %w", err)
			}
			cfg.Processor.ClaimBackoff = d
		}
	}

	if r := doc.Retention; r != nil {
		if r.QueueEntryDays != 0 {
			cfg.Retention.QueueEntryDays = r.QueueEntryDays
		}
		if r.InterruptedExecutionDays != 0 {
			cfg.Retention.InterruptedExecutionDays = r.InterruptedExecutionDays
		}
		if r.Schedule != "" {
			cfg.Retention.Schedule = r.Schedule
		}
	}

	return nil
}
