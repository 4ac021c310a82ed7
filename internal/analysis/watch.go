package analysis

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchRules reloads the rules file at path whenever it changes and passes
// the result to apply. Removing the file falls back to the built-in rules.
// It blocks until ctx is cancelled.
func WatchRules(ctx context.Context, path string, apply func(*Rules) error, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Clean(path)
	logger.Info("watching extraction rules", zap.String("path", target))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rules, err := LoadRules(target)
			if err != nil {
				logger.Warn("extraction rules not reloaded", zap.String("path", target), zap.Error(err))
				continue
			}
			if err := apply(rules); err != nil {
				logger.Warn("extraction rules rejected", zap.String("path", target), zap.Error(err))
				continue
			}
			logger.Info("extraction rules reloaded", zap.String("path", target), zap.String("op", event.Op.String()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}
