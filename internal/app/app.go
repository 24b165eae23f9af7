// Package app wires the camera, the frame slot and the pose detector together
// and answers landmark requests.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/posecam/internal/capture"
	"github.com/ayusman/posecam/internal/detector"
	"github.com/ayusman/posecam/internal/metrics"
)

var (
	// ErrNoCamera is returned by New when no camera is configured.
	ErrNoCamera = errors.New("no camera configured")

	// ErrNoDetector is returned by New when no detector is configured.
	ErrNoDetector = errors.New("no detector configured")
)

// Config holds configuration options for the application.
type Config struct {
	Camera   capture.Camera
	Detector detector.Detector
	Retry    capture.RetryPolicy
	// FPS is applied to the camera after it opens. Zero keeps the device default.
	FPS     int
	Metrics *metrics.Metrics
}

// App owns the capture loop and serves landmark requests from its frame slot.
type App struct {
	config  Config
	slot    *capture.Slot
	loop    *capture.Loop
	metrics *metrics.Metrics
	started time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool

	errMu   sync.RWMutex
	loopErr error
}

// New creates a new App with an empty frame slot. Nothing is opened until Start.
func New(config Config) (*App, error) {
	if config.Camera == nil {
		return nil, ErrNoCamera
	}
	if config.Detector == nil {
		return nil, ErrNoDetector
	}

	retry := config.Retry
	if retry.Interval <= 0 {
		retry = capture.DefaultRetryPolicy()
	}

	slot := capture.NewSlot()

	return &App{
		config:  config,
		slot:    slot,
		loop:    capture.NewLoop(config.Camera, slot, retry, config.Metrics),
		metrics: config.Metrics,
	}, nil
}

// Start opens the camera and launches the capture loop. A camera that cannot
// be opened is a startup error. Calling Start again is a no-op.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return errors.New("app already stopped")
	}
	if a.cancel != nil {
		return nil
	}

	if err := a.config.Camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	if a.config.FPS > 0 {
		a.config.Camera.SetFPS(a.config.FPS)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.started = time.Now()

	go func() {
		defer close(a.done)
		if err := a.loop.Run(ctx); err != nil {
			slog.Error("capture loop exited", "error", err)
			a.setErr(err)
		}
	}()

	slog.Info("capture started", "fps", a.config.Camera.FPS())
	return nil
}

// Stop cancels the capture loop, waits for it to exit and releases the
// detector and the camera. It is safe to call more than once.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return
	}
	a.stopped = true

	if a.cancel != nil {
		a.cancel()
		<-a.done
	}

	if err := a.config.Detector.Close(); err != nil {
		slog.Warn("error closing detector", "error", err)
	}
	if err := a.config.Camera.Close(); err != nil {
		slog.Warn("error closing camera", "error", err)
	}

	slog.Info("capture stopped")
}

// Snapshot returns a copy of the most recent frame.
func (a *App) Snapshot() (capture.Frame, bool) {
	return a.slot.Snapshot()
}

// FrameInfo returns the sequence number and capture time of the most recent frame.
func (a *App) FrameInfo() (seq uint64, capturedAt time.Time, ok bool) {
	return a.slot.Info()
}

// Slot returns the frame slot.
func (a *App) Slot() *capture.Slot {
	return a.slot
}

// Loop returns the capture loop.
func (a *App) Loop() *capture.Loop {
	return a.loop
}

// SetRetryPolicy changes how the capture loop retries failed reads.
func (a *App) SetRetryPolicy(p capture.RetryPolicy) {
	a.loop.SetRetryPolicy(p)
}

// Err returns the error the capture loop stopped with, if any.
func (a *App) Err() error {
	a.errMu.RLock()
	defer a.errMu.RUnlock()
	return a.loopErr
}

func (a *App) setErr(err error) {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	a.loopErr = err
}
