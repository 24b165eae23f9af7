package detector

import (
	"context"
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// Detect runs the pose model on an RGB frame.
	// It returns NotDetected when the frame contains no pose, and an error
	// when the model could not be run.
	Detect(ctx context.Context, frame *gocv.Mat) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Result is the outcome of one detection: either a pose skeleton or no detection.
type Result struct {
	Landmarks []Landmark
}

// NotDetected is the result for a frame without a usable pose.
var NotDetected = Result{}

// Detected returns a Result holding landmarks.
func Detected(landmarks []Landmark) Result {
	return Result{Landmarks: landmarks}
}

// Detected reports whether the result holds a pose.
func (r Result) Detected() bool {
	return len(r.Landmarks) > 0
}

// Config holds configuration options for the MediaPipe pose detector.
type Config struct {
	// ModelPath is the PoseLandmarker .task asset.
	ModelPath string

	// ScriptPath is the pose service script. Empty searches the usual locations.
	ScriptPath string

	// Python is the interpreter used to run the script. Empty prefers a
	// virtualenv next to the binary, then python3.
	Python string

	// Timeout bounds a single detection round trip.
	Timeout time.Duration

	// StartupTimeout bounds starting the service and loading the model.
	StartupTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:      "pose_landmarker_lite.task",
		Timeout:        2 * time.Second,
		StartupTimeout: 30 * time.Second,
	}
}
