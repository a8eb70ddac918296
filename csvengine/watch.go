package csvengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"dbconnect.dev/internal/logging"
)

var ErrNothingToWatch = errors.New("csv engine has no path to watch")

const watchedOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

// Watch clears the cache whenever a CSV file in the current directory is created, written,
// removed or renamed. It blocks until ctx is done. The directory is the one configured when
// Watch starts; a later SetPath is not followed.
func (e *Engine) Watch(ctx context.Context) error {
	path := e.Path()
	if path == "" {
		return ErrNothingToWatch
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer logging.SafeCloseWithLogging(watcher, e.logger, "csv_watcher")

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	e.logger.Info("watching csv directory", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != csvExtension || event.Op&watchedOps == 0 {
				continue
			}
			e.ClearCache()
			logging.LogOperation(e.logger, "csv_cache_invalidated",
				slog.String("file", filepath.Base(event.Name)),
				slog.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.LogError(e.logger, "csv watcher error", err, slog.String("path", path))
		}
	}
}
