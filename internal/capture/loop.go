package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ayusman/posecam/internal/metrics"
)

var (
	// ErrRetriesExhausted is returned by Run when MaxRetries consecutive reads failed.
	ErrRetriesExhausted = errors.New("camera read retries exhausted")

	// ErrLoopRunning is returned by Run when the loop is already running.
	ErrLoopRunning = errors.New("capture loop already running")
)

// Loop continuously reads frames from a camera into a slot.
// It is the only writer of the slot.
type Loop struct {
	camera  Camera
	slot    *Slot
	metrics *metrics.Metrics
	policy  atomic.Pointer[RetryPolicy]
	running atomic.Bool
}

// NewLoop creates a capture loop. m may be nil.
func NewLoop(camera Camera, slot *Slot, policy RetryPolicy, m *metrics.Metrics) *Loop {
	l := &Loop{
		camera:  camera,
		slot:    slot,
		metrics: m,
	}
	l.policy.Store(&policy)
	return l
}

// SetRetryPolicy replaces the retry policy. It takes effect on the next failure.
func (l *Loop) SetRetryPolicy(p RetryPolicy) {
	l.policy.Store(&p)
}

// RetryPolicy returns the current retry policy.
func (l *Loop) RetryPolicy() RetryPolicy {
	return *l.policy.Load()
}

// Tick reads one frame and stores it in the slot. On error the slot is left
// unchanged.
func (l *Loop) Tick() error {
	mat, err := l.camera.ReadFrame()
	if err != nil {
		l.metrics.CaptureError()
		return err
	}
	defer mat.Close()

	frame, err := FrameFromMat(mat)
	if err != nil {
		l.metrics.CaptureError()
		return err
	}

	seq := l.slot.Store(frame)
	l.metrics.FrameCaptured(seq)

	return nil
}

// Run calls Tick until ctx is cancelled. Failed reads are retried after the
// policy's delay. Run returns nil on cancellation and an error wrapping
// ErrRetriesExhausted if the policy gives up.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	slog.Info("capture loop started")
	defer slog.Info("capture loop stopped")

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := l.Tick()
		if err == nil {
			if failures > 0 {
				slog.Info("camera read recovered", "failed_attempts", failures)
			}
			failures = 0
			continue
		}

		failures++
		policy := l.RetryPolicy()

		if policy.Exhausted(failures) {
			return fmt.Errorf("%w (%d attempts): %v", ErrRetriesExhausted, failures, err)
		}

		delay := policy.Delay(failures)
		if failures == 1 {
			slog.Warn("failed to read frame from camera", "error", err, "retry_in", delay)
		} else {
			slog.Debug("camera read still failing", "error", err, "attempt", failures, "retry_in", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Running reports whether Run is currently executing.
func (l *Loop) Running() bool {
	return l.running.Load()
}
