package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ayusman/posecam/internal/logging"
)

// Validate checks the configuration and fills in defaults for optional
// fields left empty.
func Validate(cfg *Config) error {
	def := Default()

	// Server
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout},
		{"server.stream_interval", cfg.Server.StreamInterval},
		{"server.broadcast_interval", cfg.Server.BroadcastInterval},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s must be >= 0", d.name)
		}
	}

	// Camera
	if cfg.Camera.DeviceID < 0 {
		return fmt.Errorf("camera.device_id must be >= 0")
	}
	if cfg.Camera.Width < 0 || cfg.Camera.Height < 0 {
		return fmt.Errorf("camera.width and camera.height must be >= 0")
	}
	if cfg.Camera.FPS < 0 {
		return fmt.Errorf("camera.fps must be >= 0")
	}

	// Capture
	if cfg.Capture.RetryInterval < 0 {
		return fmt.Errorf("capture.retry_interval must be >= 0")
	}
	if cfg.Capture.RetryInterval == 0 {
		cfg.Capture.RetryInterval = def.Capture.RetryInterval
	}
	if cfg.Capture.BackoffMultiplier < 0 {
		return fmt.Errorf("capture.backoff_multiplier must be >= 0")
	}
	if cfg.Capture.BackoffMultiplier == 0 {
		cfg.Capture.BackoffMultiplier = def.Capture.BackoffMultiplier
	}
	if cfg.Capture.MaxRetryInterval < 0 {
		return fmt.Errorf("capture.max_retry_interval must be >= 0")
	}
	if cfg.Capture.MaxRetryInterval > 0 && cfg.Capture.MaxRetryInterval < cfg.Capture.RetryInterval {
		return fmt.Errorf("capture.max_retry_interval (%s) is shorter than capture.retry_interval (%s)",
			cfg.Capture.MaxRetryInterval, cfg.Capture.RetryInterval)
	}
	if cfg.Capture.BackoffMultiplier > 1 && cfg.Capture.MaxRetryInterval == 0 {
		return fmt.Errorf("capture.max_retry_interval is required when capture.backoff_multiplier > 1")
	}
	if cfg.Capture.MaxRetries < 0 {
		return fmt.Errorf("capture.max_retries must be >= 0")
	}

	// Detector
	cfg.Detector.Backend = strings.ToLower(strings.TrimSpace(cfg.Detector.Backend))
	switch cfg.Detector.Backend {
	case "":
		cfg.Detector.Backend = BackendMediaPipe
	case BackendMediaPipe, BackendMock:
	default:
		return fmt.Errorf("detector.backend must be %q or %q, got %q", BackendMediaPipe, BackendMock, cfg.Detector.Backend)
	}
	if cfg.Detector.Backend == BackendMediaPipe && cfg.Detector.ModelPath == "" {
		return fmt.Errorf("detector.model_path is required for the %s backend", BackendMediaPipe)
	}
	if cfg.Detector.Timeout < 0 {
		return fmt.Errorf("detector.timeout must be >= 0")
	}
	if cfg.Detector.Timeout == 0 {
		cfg.Detector.Timeout = def.Detector.Timeout
	}
	if cfg.Detector.StartupTimeout < 0 {
		return fmt.Errorf("detector.startup_timeout must be >= 0")
	}
	if cfg.Detector.StartupTimeout == 0 {
		cfg.Detector.StartupTimeout = def.Detector.StartupTimeout
	}

	// Log
	switch strings.ToLower(cfg.Log.Format) {
	case "":
		cfg.Log.Format = def.Log.Format
	case "text", "json":
		cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}
