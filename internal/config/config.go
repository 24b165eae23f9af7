// Package config loads the posecam YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ayusman/posecam/internal/capture"
	"github.com/ayusman/posecam/internal/detector"
	"github.com/ayusman/posecam/internal/server"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when none is given explicitly.
const DefaultPath = "posecam.yaml"

// DefaultAddr is the default HTTP listen address.
const DefaultAddr = ":8000"

// Detector backends
const (
	BackendMediaPipe = "mediapipe"
	BackendMock      = "mock"
)

// Config represents the complete posecam configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Detector DetectorConfig `yaml:"detector"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	StaticDir         string        `yaml:"static_dir"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	StreamInterval    time.Duration `yaml:"stream_interval"`    // MJPEG preview frame interval
	BroadcastInterval time.Duration `yaml:"broadcast_interval"` // websocket landmark push interval
}

// CameraConfig contains capture device settings.
type CameraConfig struct {
	DeviceID int `yaml:"device_id"`
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	FPS      int `yaml:"fps"`
}

// CaptureConfig controls how the capture loop retries failed reads.
type CaptureConfig struct {
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"` // 1 keeps the interval fixed
	MaxRetryInterval  time.Duration `yaml:"max_retry_interval"`
	MaxRetries        int           `yaml:"max_retries"` // 0 retries forever
}

// DetectorConfig contains pose model settings.
type DetectorConfig struct {
	Backend        string        `yaml:"backend"` // mediapipe, mock
	ModelPath      string        `yaml:"model_path"`
	ScriptPath     string        `yaml:"script_path,omitempty"`
	Python         string        `yaml:"python,omitempty"`
	Timeout        time.Duration `yaml:"timeout"`
	StartupTimeout time.Duration `yaml:"startup_timeout"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns the built-in configuration.
func Default() *Config {
	cam := capture.DefaultConfig()
	retry := capture.DefaultRetryPolicy()
	det := detector.DefaultConfig()

	return &Config{
		Server: ServerConfig{
			Addr:              DefaultAddr,
			ReadTimeout:       server.DefaultReadTimeout,
			WriteTimeout:      server.DefaultWriteTimeout,
			ShutdownTimeout:   server.DefaultShutdownTimeout,
			StreamInterval:    server.DefaultStreamInterval,
			BroadcastInterval: server.DefaultBroadcastInterval,
		},
		Camera: CameraConfig{
			DeviceID: cam.DeviceID,
			Width:    cam.Width,
			Height:   cam.Height,
			FPS:      cam.FPS,
		},
		Capture: CaptureConfig{
			RetryInterval:     retry.Interval,
			BackoffMultiplier: retry.Multiplier,
			MaxRetryInterval:  retry.MaxInterval,
			MaxRetries:        retry.MaxRetries,
		},
		Detector: DetectorConfig{
			Backend:        BackendMediaPipe,
			ModelPath:      det.ModelPath,
			Timeout:        det.Timeout,
			StartupTimeout: det.StartupTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a YAML configuration file. Keys missing from the
// file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// CameraSettings returns the capture device settings.
func (c *Config) CameraSettings() capture.Config {
	return capture.Config{
		DeviceID: c.Camera.DeviceID,
		Width:    c.Camera.Width,
		Height:   c.Camera.Height,
		FPS:      c.Camera.FPS,
	}
}

// RetryPolicy returns the capture retry policy.
func (c *Config) RetryPolicy() capture.RetryPolicy {
	return capture.RetryPolicy{
		Interval:    c.Capture.RetryInterval,
		Multiplier:  c.Capture.BackoffMultiplier,
		MaxInterval: c.Capture.MaxRetryInterval,
		MaxRetries:  c.Capture.MaxRetries,
	}
}

// DetectorSettings returns the MediaPipe detector settings.
func (c *Config) DetectorSettings() detector.Config {
	return detector.Config{
		ModelPath:      c.Detector.ModelPath,
		ScriptPath:     c.Detector.ScriptPath,
		Python:         c.Detector.Python,
		Timeout:        c.Detector.Timeout,
		StartupTimeout: c.Detector.StartupTimeout,
	}
}

// ServerSettings returns the HTTP server settings. The pipeline and metrics
// are left for the caller to fill in.
func (c *Config) ServerSettings() server.Config {
	return server.Config{
		StaticDir:         c.Server.StaticDir,
		StreamInterval:    c.Server.StreamInterval,
		BroadcastInterval: c.Server.BroadcastInterval,
		ReadTimeout:       c.Server.ReadTimeout,
		WriteTimeout:      c.Server.WriteTimeout,
		ShutdownTimeout:   c.Server.ShutdownTimeout,
	}
}
