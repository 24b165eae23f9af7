package detector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocv.io/x/gocv"
)

func TestResult_Detected(t *testing.T) {
	if NotDetected.Detected() {
		t.Error("NotDetected should not report a pose")
	}

	var zero Result
	if zero.Detected() {
		t.Error("zero Result should not report a pose")
	}

	r := Detected(StandingPoseLandmarks())
	if !r.Detected() {
		t.Error("expected Detected result to report a pose")
	}
	if len(r.Landmarks) != NumLandmarks {
		t.Errorf("expected %d landmarks, got %d", NumLandmarks, len(r.Landmarks))
	}
}

func TestLandmark_Triple(t *testing.T) {
	l := Landmark{X: 0.1, Y: 0.2, Z: -0.3}
	got := l.Triple()
	if got != [3]float64{0.1, 0.2, -0.3} {
		t.Errorf("Triple() = %v", got)
	}
}

func TestStandingPoseLandmarks(t *testing.T) {
	lm := StandingPoseLandmarks()
	if len(lm) != NumLandmarks {
		t.Fatalf("expected %d landmarks, got %d", NumLandmarks, len(lm))
	}

	for i, l := range lm {
		if l.X < 0 || l.X > 1 || l.Y < 0 || l.Y > 1 {
			t.Errorf("landmark %d out of normalized range: %+v", i, l)
		}
	}

	// Head above shoulders above hips above ankles (image y grows downward)
	if !(lm[Nose].Y < lm[LeftShoulder].Y && lm[LeftShoulder].Y < lm[LeftHip].Y && lm[LeftHip].Y < lm[LeftAnkle].Y) {
		t.Error("expected an upright pose")
	}
}

func TestMockDetector(t *testing.T) {
	ctx := context.Background()

	t.Run("detects nothing by default", func(t *testing.T) {
		m := NewMockDetector()
		res, err := m.Detect(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Detected() {
			t.Error("expected no detection")
		}
		if m.Calls() != 1 {
			t.Errorf("expected 1 call, got %d", m.Calls())
		}
	})

	t.Run("returns configured landmarks", func(t *testing.T) {
		m := NewMockDetector()
		m.SetLandmarks(StandingPoseLandmarks())

		res, err := m.Detect(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Detected() || len(res.Landmarks) != NumLandmarks {
			t.Fatalf("expected %d landmarks, got %d", NumLandmarks, len(res.Landmarks))
		}

		// The caller owns the returned slice.
		res.Landmarks[0].X = 42
		again, _ := m.Detect(ctx, nil)
		if again.Landmarks[0].X == 42 {
			t.Error("mutating a result should not affect later results")
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		m := NewMockDetector()
		m.SetLandmarks(StandingPoseLandmarks())
		wantErr := errors.New("model failed")
		m.SetError(wantErr)

		res, err := m.Detect(ctx, nil)
		if !errors.Is(err, wantErr) {
			t.Errorf("expected %v, got %v", wantErr, err)
		}
		if res.Detected() {
			t.Error("expected no detection alongside an error")
		}
	})

	t.Run("panics when configured", func(t *testing.T) {
		m := NewMockDetector()
		m.SetPanic("boom")

		defer func() {
			if r := recover(); r == nil {
				t.Error("expected Detect to panic")
			}
			// The lock must be released after the panic.
			if m.Calls() != 1 {
				t.Errorf("expected 1 call, got %d", m.Calls())
			}
		}()
		m.Detect(ctx, nil)
	})

	t.Run("honors cancelled context", func(t *testing.T) {
		m := NewMockDetector()
		m.SetLandmarks(StandingPoseLandmarks())

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := m.Detect(cctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("records frame size", func(t *testing.T) {
		m := NewMockDetector()
		frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
		defer frame.Close()

		if _, err := m.Detect(ctx, &frame); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rows, cols, channels := m.LastFrameSize()
		if rows != 48 || cols != 64 || channels != 3 {
			t.Errorf("expected 48x64x3, got %dx%dx%d", rows, cols, channels)
		}
	})

	t.Run("close", func(t *testing.T) {
		m := NewMockDetector()
		if m.Closed() {
			t.Error("expected detector to start open")
		}
		if err := m.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if !m.Closed() {
			t.Error("expected detector to be closed")
		}
	})
}

func TestProtocol_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	req := poseRequest{Width: 2, Height: 1, Channels: 3, Pixels: []byte{1, 2, 3, 4, 5, 6}}
	if err := writeMessage(&buf, &req); err != nil {
		t.Fatalf("writeMessage failed: %v", err)
	}

	n := binary.BigEndian.Uint32(buf.Bytes()[:4])
	if int(n) != buf.Len()-4 {
		t.Errorf("length prefix %d does not match body size %d", n, buf.Len()-4)
	}

	var got poseRequest
	if err := readMessage(&buf, &got); err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}

	if got.Width != 2 || got.Height != 1 || got.Channels != 3 {
		t.Errorf("unexpected header fields: %+v", got)
	}
	if !bytes.Equal(got.Pixels, req.Pixels) {
		t.Errorf("pixels = %v, want %v", got.Pixels, req.Pixels)
	}
}

func TestProtocol_ReadErrors(t *testing.T) {
	t.Run("message too large", func(t *testing.T) {
		header := make([]byte, 4)
		binary.BigEndian.PutUint32(header, maxMessageSize+1)

		var resp poseResponse
		err := readMessage(bytes.NewReader(header), &resp)
		if !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("expected ErrMessageTooLarge, got %v", err)
		}
	})

	t.Run("truncated body", func(t *testing.T) {
		msg := make([]byte, 4, 6)
		binary.BigEndian.PutUint32(msg, 10)
		msg = append(msg, 0x80, 0x80)

		var resp poseResponse
		if err := readMessage(bytes.NewReader(msg), &resp); err == nil {
			t.Error("expected error for truncated body")
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		var resp poseResponse
		if err := readMessage(bytes.NewReader(nil), &resp); err == nil {
			t.Error("expected error for empty stream")
		}
	})
}

func TestPoseResponse_ToResult(t *testing.T) {
	full := make([][]float64, NumLandmarks)
	for i := range full {
		full[i] = []float64{float64(i) / 100, 0.5, -0.1}
	}

	short := full[:NumLandmarks-1]

	bad := make([][]float64, NumLandmarks)
	copy(bad, full)
	bad[5] = []float64{0.1, 0.2}

	nan := make([][]float64, NumLandmarks)
	copy(nan, full)
	nan[5] = []float64{0.1, 0.2, math.NaN()}

	inf := make([][]float64, NumLandmarks)
	copy(inf, full)
	inf[7] = []float64{math.Inf(1), 0.2, 0.3}

	tests := []struct {
		name     string
		resp     poseResponse
		detected bool
		wantErr  string
	}{
		{name: "no pose", resp: poseResponse{}, detected: false},
		{name: "full pose", resp: poseResponse{Landmarks: full}, detected: true},
		{name: "service error", resp: poseResponse{Error: "inference failed"}, wantErr: "inference failed"},
		{name: "wrong landmark count", resp: poseResponse{Landmarks: short}, wantErr: "32 landmarks"},
		{name: "wrong coordinate count", resp: poseResponse{Landmarks: bad}, wantErr: "landmark 5"},
		{name: "NaN coordinate", resp: poseResponse{Landmarks: nan}, wantErr: "landmark 5 has non-finite"},
		{name: "infinite coordinate", resp: poseResponse{Landmarks: inf}, wantErr: "landmark 7 has non-finite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.resp.toResult()

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				if res.Detected() {
					t.Error("expected no detection alongside an error")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Detected() != tt.detected {
				t.Errorf("Detected() = %v, want %v", res.Detected(), tt.detected)
			}
			if tt.detected && res.Landmarks[10].X != 0.10 {
				t.Errorf("landmark 10 X = %f, want 0.10", res.Landmarks[10].X)
			}
		})
	}
}

func TestProtocol_ResponseOverStream(t *testing.T) {
	var buf bytes.Buffer

	lm := StandingPoseLandmarks()
	points := make([][]float64, len(lm))
	for i, l := range lm {
		points[i] = []float64{l.X, l.Y, l.Z}
	}

	if err := writeMessage(&buf, poseResponse{Landmarks: points}); err != nil {
		t.Fatalf("writeMessage failed: %v", err)
	}

	var resp poseResponse
	if err := readMessage(&buf, &resp); err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}

	res, err := resp.toResult()
	if err != nil {
		t.Fatalf("toResult failed: %v", err)
	}
	if res.Landmarks[Nose] != lm[Nose] {
		t.Errorf("nose = %+v, want %+v", res.Landmarks[Nose], lm[Nose])
	}
}

func TestNewMediaPipeDetector_MissingAssets(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ModelPath = filepath.Join(dir, "missing.task")

		_, err := NewMediaPipeDetector(cfg)
		if !errors.Is(err, ErrModelNotFound) {
			t.Errorf("expected ErrModelNotFound, got %v", err)
		}
	})

	t.Run("missing script", func(t *testing.T) {
		model := filepath.Join(dir, "pose.task")
		if err := os.WriteFile(model, []byte("model"), 0644); err != nil {
			t.Fatal(err)
		}

		cfg := DefaultConfig()
		cfg.ModelPath = model
		cfg.ScriptPath = filepath.Join(dir, "missing.py")

		_, err := NewMediaPipeDetector(cfg)
		if !errors.Is(err, ErrScriptNotFound) {
			t.Errorf("expected ErrScriptNotFound, got %v", err)
		}
	})
}

func TestMediaPipeDetector_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	model := os.Getenv("POSECAM_MODEL")
	if model == "" {
		t.Skip("POSECAM_MODEL not set")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = model
	cfg.ScriptPath = filepath.Join("..", "..", "scripts", serviceScript)

	d, err := NewMediaPipeDetector(cfg)
	if err != nil {
		t.Skipf("pose service unavailable: %v", err)
	}
	defer d.Close()

	// A blank frame holds no person.
	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	res, err := d.Detect(context.Background(), &frame)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if res.Detected() {
		t.Error("expected no pose in a blank frame")
	}
}
