package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ayusman/posecam/internal/capture"
	"github.com/ayusman/posecam/internal/detector"
	"gocv.io/x/gocv"
)

// Landmarks runs the pose model on the most recent frame.
//
// It never fails: an empty slot, a conversion error, a detector error or a
// panic inside the detector all produce detector.NotDetected. The camera is
// never read here; only the slot is.
func (a *App) Landmarks(ctx context.Context) detector.Result {
	a.metrics.Request()

	frame, ok := a.slot.Snapshot()
	if !ok {
		a.metrics.SnapshotMiss()
		slog.Debug("no frame captured yet")
		return detector.NotDetected
	}

	rgb, err := toRGB(frame)
	if err != nil {
		slog.Warn("failed to convert frame", "error", err, "seq", frame.Seq)
		return detector.NotDetected
	}
	defer rgb.Close()

	return a.detect(ctx, &rgb, frame.Seq)
}

func (a *App) detect(ctx context.Context, rgb *gocv.Mat, seq uint64) (result detector.Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("pose detector panicked", "panic", r, "seq", seq)
			a.metrics.Detection(false, fmt.Errorf("panic: %v", r), time.Since(start))
			result = detector.NotDetected
		}
	}()

	res, err := a.config.Detector.Detect(ctx, rgb)
	took := time.Since(start)
	a.metrics.Detection(res.Detected(), err, took)

	if err != nil {
		slog.Warn("pose detection failed", "error", err, "seq", seq)
		return detector.NotDetected
	}
	if !res.Detected() {
		slog.Debug("no pose in frame", "seq", seq, "took", took)
		return detector.NotDetected
	}

	slog.Debug("pose detected", "seq", seq, "landmarks", len(res.Landmarks), "took", took)
	return res
}

// toRGB converts a device-native frame to a new RGB Mat owned by the caller.
func toRGB(f capture.Frame) (gocv.Mat, error) {
	src, err := f.ToMat()
	if err != nil {
		src.Close()
		return gocv.NewMat(), err
	}
	defer src.Close()

	var code gocv.ColorConversionCode
	switch f.Channels {
	case 1:
		// Gray expands to identical channels, so the BGR variant is also RGB.
		code = gocv.ColorGrayToBGR
	case 4:
		code = gocv.ColorBGRAToRGB
	default:
		code = gocv.ColorBGRToRGB
	}

	rgb := gocv.NewMat()
	gocv.CvtColor(src, &rgb, code)
	if rgb.Empty() {
		rgb.Close()
		return gocv.NewMat(), fmt.Errorf("color conversion produced an empty frame")
	}

	return rgb, nil
}
