package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce collapses the burst of events produced by one artifact
// write (both files, temp file then rename) into a single reload.
var reloadDebounce = 500 * time.Millisecond

// WatchArtifacts reloads the artifact pair whenever either file changes and
// swaps it into p. A reload that fails keeps the current artifacts. It
// blocks until ctx is done.
func WatchArtifacts(ctx context.Context, p *Predictor, modelPath, columnsPath string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	targets := map[string]bool{
		filepath.Clean(modelPath):   true,
		filepath.Clean(columnsPath): true,
	}
	dirs := map[string]bool{}
	for path := range targets {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("artifact watcher error", zap.Error(err))

		case <-timer.C:
			art, err := LoadArtifacts(modelPath, columnsPath)
			if err != nil {
				zap.L().Warn("artifact reload failed, keeping current model", zap.Error(err))
				continue
			}
			if err := p.Swap(art); err != nil {
				zap.L().Warn("artifact swap failed", zap.Error(err))
				continue
			}
			zap.L().Info("artifacts reloaded",
				zap.String("model", modelPath),
				zap.Int("features", art.Schema.Len()),
				zap.String("fingerprint", art.Schema.Fingerprint()))
		}
	}
}
