package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches conductor.yaml for changes and reloads the shared
// Store in place, so the Admission Checker and Queue Processor pick up
// new limits without a restart (spec §9).
type Watcher struct {
	configDir string
	store     *Store
	logger    *slog.Logger
}

// NewWatcher creates a watcher that reloads store whenever configDir's
// conductor.yaml is written, created, or renamed into place.
func NewWatcher(configDir string, store *Store, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{configDir: configDir, store: store, logger: logger}
}

// Start begins watching in the background. It returns once the watch is
// established; reload errors are logged, not returned, since a bad edit
// to conductor.yaml should not tear down a running process.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	target := filepath.Join(w.configDir, "conductor.yaml")
	if err := fsw.Add(w.configDir); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Name != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	cfg, err := load(w.configDir)
	if err != nil {
		w.logger.Error("failed to reload configuration, keeping previous values", "error", err)
		return
	}
	if err := NewValidator(cfg).ValidateAll(); err != nil {
		w.logger.Error("reloaded configuration failed validation, keeping previous values", "error", err)
		return
	}
	w.store.Replace(cfg)
	w.logger.Info("configuration reloaded",
		"global_limit", cfg.Concurrency.GlobalLimit.String(),
		"queue_enabled", cfg.Concurrency.Queue.Enabled)
}
