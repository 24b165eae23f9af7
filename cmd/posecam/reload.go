package main

import (
	"log/slog"
	"sync"

	"github.com/ayusman/posecam/internal/capture"
	"github.com/ayusman/posecam/internal/config"
	"github.com/ayusman/posecam/internal/logging"
)

// retrySetter is the part of the app a reload can change while running.
type retrySetter interface {
	SetRetryPolicy(capture.RetryPolicy)
}

// reloader applies config file changes to a running process. Only the log
// level and the capture retry policy change live; everything else is
// reported as needing a restart.
type reloader struct {
	mu        sync.Mutex
	current   *config.Config
	level     *slog.LevelVar
	app       retrySetter
	overrides func(*config.Config) error
}

func (r *reloader) apply(next *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.overrides != nil {
		if err := r.overrides(next); err != nil {
			slog.Warn("ignoring config change", "error", err)
			return
		}
	}

	if next.Log.Level != r.current.Log.Level {
		lvl, err := logging.ParseLevel(next.Log.Level)
		if err == nil {
			r.level.Set(lvl)
			slog.Info("log level changed", "level", next.Log.Level)
		}
	}

	if next.Capture != r.current.Capture {
		r.app.SetRetryPolicy(next.RetryPolicy())
		slog.Info("capture retry policy changed",
			"interval", next.Capture.RetryInterval,
			"multiplier", next.Capture.BackoffMultiplier,
			"max_interval", next.Capture.MaxRetryInterval,
			"max_retries", next.Capture.MaxRetries,
		)
	}

	var restart []string
	if next.Server != r.current.Server {
		restart = append(restart, "server")
	}
	if next.Camera != r.current.Camera {
		restart = append(restart, "camera")
	}
	if next.Detector != r.current.Detector {
		restart = append(restart, "detector")
	}
	if next.Log.Format != r.current.Log.Format {
		restart = append(restart, "log.format")
	}
	if len(restart) > 0 {
		slog.Warn("config change requires restart", "sections", restart)
	}

	r.current = next
}
