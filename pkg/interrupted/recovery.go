package interrupted

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskforge/conductor/pkg/admission"
	"github.com/taskforge/conductor/pkg/config"
)

// Recovery re-submits interrupted executions through the Admission
// Entry Point at startup (spec §5).
type Recovery struct {
	store      *Store
	configs    *config.Store
	entryPoint *admission.EntryPoint
	logger     *slog.Logger
}

// NewRecovery wires a Recovery.
func NewRecovery(store *Store, configs *config.Store, entryPoint *admission.EntryPoint, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{store: store, configs: configs, entryPoint: entryPoint, logger: logger}
}

// Run walks every not-yet-resumed record, oldest first, and
// resubmits each through the Admission Entry Point, applying the
// configured resume prompt. A record is marked resumed only after its
// resubmission succeeds, so a crash mid-recovery leaves the remaining
// records for the next startup to pick up.
func (r *Recovery) Run(ctx context.Context) error {
	cfg := r.configs.Get()
	if !cfg.Concurrency.Queue.ResumeOnRestart {
		r.logger.Info("startup recovery disabled, leaving interrupted executions untouched")
		return nil
	}

	records, err := r.store.FindNotResumed(ctx)
	if err != nil {
		return fmt.Errorf("recovery: find not resumed: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	r.logger.Info("resuming interrupted executions", "count", len(records))

	for _, rec := range records {
		action := applyResumePrompt(rec.OriginalAction, cfg.Concurrency.Queue.ResumePrompt)
		prompt := cfg.Concurrency.Queue.ResumePrompt

		outcome, err := r.entryPoint.Submit(ctx, rec.SessionID, rec.WorkspaceID, rec.ExecutorType, action, &prompt)
		if err != nil {
			r.logger.Error("failed to resume interrupted execution", "id", rec.ID, "session_id", rec.SessionID, "error", err)
			continue
		}

		if err := r.store.MarkResumed(ctx, rec.ID); err != nil {
			r.logger.Error("resumed execution but failed to mark record resumed", "id", rec.ID, "error", err)
			continue
		}

		switch {
		case outcome.Started != nil:
			r.logger.Info("resumed execution started immediately", "id", rec.ID, "execution_process_id", outcome.Started.ID)
		case outcome.Queued != nil:
			r.logger.Info("resumed execution queued", "id", rec.ID, "position", outcome.Queued.Position)
		}
	}

	return nil
}

// applyResumePrompt substitutes "{original_prompt}" in prompt if
// present, or replaces the prompt wholesale otherwise (spec §6). A
// payload without a recognizable prompt field is passed through
// unchanged.
func applyResumePrompt(originalAction json.RawMessage, prompt string) json.RawMessage {
	var fields map[string]any
	if err := json.Unmarshal(originalAction, &fields); err != nil {
		return originalAction
	}

	original, ok := fields["prompt"].(string)
	if !ok {
		return originalAction
	}
	if strings.Contains(prompt, "{original_prompt}") {
		fields["prompt"] = strings.ReplaceAll(prompt, "{original_prompt}", original)
	} else {
		fields["prompt"] = prompt
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return originalAction
	}
	return out
}
