// Package configwatch warns an operator when the relay's config file
// changes on disk after startup. Config is validated once at process
// start (internal/config.Load) and never hot-reloaded — this only
// surfaces drift so an operator knows a restart is needed to pick up
// the edit.
package configwatch

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch starts watching path in the background until ctx is canceled.
// Failures to start the watcher are non-fatal: it's a diagnostic
// convenience, not load-bearing behavior.
func Watch(ctx context.Context, path string, logger *slog.Logger) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config file watcher unavailable", "error", err)
		return
	}
	if err := w.Add(path); err != nil {
		logger.Warn("failed to watch config file", "path", path, "error", err)
		w.Close()
		return
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					logger.Warn("config file changed on disk; restart relayd to apply it", "path", path)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config file watcher error", "error", err)
			}
		}
	}()
}
