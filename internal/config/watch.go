package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses the burst of events editors produce for one save.
var debounce = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and calls fn with each
// valid new configuration. Invalid files are logged and skipped. Watch blocks
// until ctx is cancelled.
//
// The parent directory is watched rather than the file so that editors which
// replace the file on save are followed.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	// Content of the last applied file; identical rewrites are ignored.
	last, _ := os.ReadFile(abs)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	slog.Debug("watching config file", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)

		case <-timer.C:
			data, err := os.ReadFile(abs)
			if err != nil {
				slog.Warn("failed to read config file", "path", abs, "error", err)
				continue
			}
			if bytes.Equal(data, last) {
				continue
			}

			cfg, err := Parse(data)
			if err != nil {
				slog.Warn("ignoring invalid config change", "path", abs, "error", err)
				continue
			}

			last = data
			slog.Info("config reloaded", "path", abs)
			fn(cfg)
		}
	}
}
