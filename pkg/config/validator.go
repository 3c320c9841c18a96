package config

import "fmt"

// Validator checks a loaded Config for internally-consistent values,
// failing fast with a descriptive error on the first problem found.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section of the config in order.
func (v *Validator) ValidateAll() error {
	if err := v.validateConcurrency(); err != nil {
		return fmt.Errorf("concurrency validation failed: %w", err)
	}
	if err := v.validateProcessor(); err != nil {
		return fmt.Errorf("processor validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateConcurrency() error {
	c := v.cfg.Concurrency
	if n, ok := c.GlobalLimit.Value(); ok && n < 1 {
		return fmt.Errorf("global_limit must be at least 1 when set, got %d", n)
	}
	for agent, l := range c.AgentLimits {
		if n, ok := l.Value(); ok && n < 1 {
			return fmt.Errorf("agent_limits.%s must be at least 1 when set, got %d", agent, n)
		}
	}
	if c.Queue.ResumePrompt == "" {
		return fmt.Errorf("queue.resume_prompt must not be empty")
	}
	return nil
}

func (v *Validator) validateProcessor() error {
	p := v.cfg.Processor
	if p.FallbackPollInterval <= 0 {
		return fmt.Errorf("processor.fallback_poll_interval must be positive, got %v", p.FallbackPollInterval)
	}
	if p.ClaimBackoff < 0 {
		return fmt.Errorf("processor.claim_backoff must be non-negative, got %v", p.ClaimBackoff)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r.QueueEntryDays < 0 {
		return fmt.Errorf("retention.queue_entry_days must be non-negative, got %d", r.QueueEntryDays)
	}
	if r.InterruptedExecutionDays < 0 {
		return fmt.Errorf("retention.interrupted_execution_days must be non-negative, got %d", r.InterruptedExecutionDays)
	}
	if r.Schedule == "" {
		return fmt.Errorf("retention.schedule must not be empty")
	}
	return nil
}
