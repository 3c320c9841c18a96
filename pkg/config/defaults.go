package config

import "time"

// DefaultResumePrompt is applied to resumed executions when the config
// file doesn't set one, matching the original system's default.
const DefaultResumePrompt = "[Process restarted. Continue]"

// Default returns the built-in configuration applied before any
// conductor.yaml is merged on top.
func Default() *Config {
	return &Config{
		Concurrency: ConcurrencyConfig{
			GlobalLimit: Unlimited,
			AgentLimits: map[string]Limit{},
			Queue: QueueBehaviorConfig{
				Enabled:         true,
				ResumeOnRestart: true,
				ResumePrompt:    DefaultResumePrompt,
			},
		},
		Processor: ProcessorConfig{
			FallbackPollInterval: 30 * time.Second,
			ClaimBackoff:         250 * time.Millisecond,
		},
		Retention: Retention{
			QueueEntryDays:           30,
			InterruptedExecutionDays: 30,
			Schedule:                 "17 3 * * *",
		},
	}
}
