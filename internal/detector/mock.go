package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results and is safe for
// concurrent use.
type MockDetector struct {
	mu        sync.Mutex
	landmarks []Landmark
	err       error
	panicMsg  string
	calls     int
	lastFrame struct{ rows, cols, channels int }
	closed    bool
}

// NewMockDetector creates a new MockDetector instance that detects nothing.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetLandmarks sets the landmarks that will be returned by Detect.
func (m *MockDetector) SetLandmarks(landmarks []Landmark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landmarks = landmarks
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPanic makes Detect panic with msg, simulating a crash inside the model.
func (m *MockDetector) SetPanic(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
}

// Detect returns the pre-configured landmarks or error.
func (m *MockDetector) Detect(ctx context.Context, frame *gocv.Mat) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if frame != nil {
		m.lastFrame.rows, m.lastFrame.cols, m.lastFrame.channels = frame.Rows(), frame.Cols(), frame.Channels()
	}

	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.err != nil {
		return NotDetected, m.err
	}
	if err := ctx.Err(); err != nil {
		return NotDetected, err
	}

	out := make([]Landmark, len(m.landmarks))
	copy(out, m.landmarks)
	return Result{Landmarks: out}, nil
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastFrameSize returns the dimensions of the last frame passed to Detect.
func (m *MockDetector) LastFrameSize() (rows, cols, channels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFrame.rows, m.lastFrame.cols, m.lastFrame.channels
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// StandingPoseLandmarks returns a preset pose of a person standing upright,
// facing the camera with arms at their sides.
func StandingPoseLandmarks() []Landmark {
	lm := make([]Landmark, NumLandmarks)

	// Head
	lm[Nose] = Landmark{X: 0.50, Y: 0.15, Z: -0.30}
	lm[LeftEyeInner] = Landmark{X: 0.51, Y: 0.13, Z: -0.29}
	lm[LeftEye] = Landmark{X: 0.52, Y: 0.13, Z: -0.29}
	lm[LeftEyeOuter] = Landmark{X: 0.53, Y: 0.13, Z: -0.29}
	lm[RightEyeInner] = Landmark{X: 0.49, Y: 0.13, Z: -0.29}
	lm[RightEye] = Landmark{X: 0.48, Y: 0.13, Z: -0.29}
	lm[RightEyeOuter] = Landmark{X: 0.47, Y: 0.13, Z: -0.29}
	lm[LeftEar] = Landmark{X: 0.55, Y: 0.14, Z: -0.15}
	lm[RightEar] = Landmark{X: 0.45, Y: 0.14, Z: -0.15}
	lm[MouthLeft] = Landmark{X: 0.51, Y: 0.17, Z: -0.27}
	lm[MouthRight] = Landmark{X: 0.49, Y: 0.17, Z: -0.27}

	// Arms hanging down (subject's left is image right)
	lm[LeftShoulder] = Landmark{X: 0.60, Y: 0.28, Z: -0.10}
	lm[RightShoulder] = Landmark{X: 0.40, Y: 0.28, Z: -0.10}
	lm[LeftElbow] = Landmark{X: 0.63, Y: 0.42, Z: -0.08}
	lm[RightElbow] = Landmark{X: 0.37, Y: 0.42, Z: -0.08}
	lm[LeftWrist] = Landmark{X: 0.64, Y: 0.55, Z: -0.10}
	lm[RightWrist] = Landmark{X: 0.36, Y: 0.55, Z: -0.10}
	lm[LeftPinky] = Landmark{X: 0.65, Y: 0.58, Z: -0.11}
	lm[RightPinky] = Landmark{X: 0.35, Y: 0.58, Z: -0.11}
	lm[LeftIndex] = Landmark{X: 0.64, Y: 0.59, Z: -0.12}
	lm[RightIndex] = Landmark{X: 0.36, Y: 0.59, Z: -0.12}
	lm[LeftThumb] = Landmark{X: 0.63, Y: 0.57, Z: -0.11}
	lm[RightThumb] = Landmark{X: 0.37, Y: 0.57, Z: -0.11}

	// Legs
	lm[LeftHip] = Landmark{X: 0.56, Y: 0.55, Z: 0.00}
	lm[RightHip] = Landmark{X: 0.44, Y: 0.55, Z: 0.00}
	lm[LeftKnee] = Landmark{X: 0.56, Y: 0.72, Z: 0.02}
	lm[RightKnee] = Landmark{X: 0.44, Y: 0.72, Z: 0.02}
	lm[LeftAnkle] = Landmark{X: 0.56, Y: 0.88, Z: 0.05}
	lm[RightAnkle] = Landmark{X: 0.44, Y: 0.88, Z: 0.05}
	lm[LeftHeel] = Landmark{X: 0.56, Y: 0.90, Z: 0.06}
	lm[RightHeel] = Landmark{X: 0.44, Y: 0.90, Z: 0.06}
	lm[LeftFootIndex] = Landmark{X: 0.57, Y: 0.93, Z: 0.00}
	lm[RightFootIndex] = Landmark{X: 0.43, Y: 0.93, Z: 0.00}

	return lm
}
