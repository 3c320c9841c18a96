// Package config loads and validates Conductor's runtime configuration:
// concurrency limits, queue behavior, processor timing, and retention.
// Database connection settings live in pkg/database.
package config

import "time"

// ConcurrencyConfig governs the Admission Checker (spec §3, §4.1).
type ConcurrencyConfig struct {
	// GlobalLimit caps concurrently running coding-agent executions
	// across all executor types.
	GlobalLimit Limit `yaml:"global_limit" json:"global_limit"`

	// AgentLimits caps executions per executor_type. An executor type
	// absent from this map falls back to GlobalLimit.
	AgentLimits map[string]Limit `yaml:"agent_limits" json:"agent_limits"`

	// Queue controls whether admission falls back to durable queuing
	// when a limit is hit, and how interrupted executions are resumed.
	Queue QueueBehaviorConfig `yaml:"queue" json:"queue"`
}

// LimitForAgent returns the effective limit for executorType: its own
// entry in AgentLimits if present, otherwise GlobalLimit (spec §4.1 rule 2).
func (c ConcurrencyConfig) LimitForAgent(executorType string) Limit {
	if l, ok := c.AgentLimits[executorType]; ok {
		return l
	}
	return c.GlobalLimit
}

// QueueBehaviorConfig is the `concurrency.queue` surface (spec §6).
type QueueBehaviorConfig struct {
	// Enabled, when false, makes admission reject instead of queuing.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// ResumeOnRestart controls whether startup recovery re-submits
	// interrupted executions through the Admission Entry Point.
	ResumeOnRestart bool `yaml:"resume_on_restart" json:"resume_on_restart"`

	// ResumePrompt is applied to a resumed execution's prompt. If it
	// contains "{original_prompt}" that placeholder is substituted;
	// otherwise it wholly replaces the original prompt text.
	ResumePrompt string `yaml:"resume_prompt" json:"resume_prompt"`
}

// Retention controls how long terminal rows are kept before cleanup.
type Retention struct {
	// QueueEntryDays is the age (by completed_at) at which terminal
	// task_queue rows are deleted.
	QueueEntryDays int `yaml:"queue_entry_days" json:"queue_entry_days"`

	// InterruptedExecutionDays is the age (by created_at) at which
	// resumed interrupted_executions rows are deleted.
	InterruptedExecutionDays int `yaml:"interrupted_execution_days" json:"interrupted_execution_days"`

	// Schedule is the cron expression the cleanup job runs on.
	Schedule string `yaml:"schedule" json:"schedule"`
}

// ProcessorConfig tunes the Queue Processor's wait/poll behavior (spec §4.4, §5).
type ProcessorConfig struct {
	// FallbackPollInterval is the safety-net wake interval used
	// alongside the capacity-available signal and shutdown channel.
	FallbackPollInterval time.Duration `yaml:"fallback_poll_interval" json:"fallback_poll_interval"`

	// ClaimBackoff is a short delay applied after an entry is bounced
	// back to pending by the per-agent re-check (spec §9 Open Question),
	// to avoid a tight reclaim loop against the same entry.
	ClaimBackoff time.Duration `yaml:"claim_backoff" json:"claim_backoff"`
}

// Config is the top-level `conductor.yaml` document.
type Config struct {
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Processor   ProcessorConfig   `yaml:"processor" json:"processor"`
	Retention   Retention         `yaml:"retention" json:"retention"`
}
