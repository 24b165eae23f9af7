package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestFrameFromMat(t *testing.T) {
	mat := SolidMat(4, 6, 1, 2, 3)

	f, err := FrameFromMat(&mat)
	if err != nil {
		mat.Close()
		t.Fatalf("FrameFromMat() error = %v", err)
	}

	if f.Width != 6 || f.Height != 4 || f.Channels != 3 {
		t.Errorf("frame = %dx%dx%d, want 6x4x3", f.Width, f.Height, f.Channels)
	}
	if len(f.Data) != 6*4*3 {
		t.Errorf("len(Data) = %d, want %d", len(f.Data), 6*4*3)
	}
	if f.CapturedAt.IsZero() {
		t.Error("CapturedAt should be set")
	}

	// The copy must survive the Mat being released.
	mat.Close()
	if f.Data[0] != 1 || f.Data[1] != 2 || f.Data[2] != 3 {
		t.Errorf("first pixel = %v, want [1 2 3]", f.Data[:3])
	}
}

func TestFrameFromMat_Empty(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()

	if _, err := FrameFromMat(&empty); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("FrameFromMat(empty) error = %v, want ErrEmptyFrame", err)
	}
	if _, err := FrameFromMat(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("FrameFromMat(nil) error = %v, want ErrEmptyFrame", err)
	}
}

func TestFrame_ToMat(t *testing.T) {
	src := SolidMat(4, 6, 10, 20, 30)
	defer src.Close()

	f, _ := FrameFromMat(&src)

	mat, err := f.ToMat()
	if err != nil {
		t.Fatalf("ToMat() error = %v", err)
	}
	defer mat.Close()

	if mat.Rows() != 4 || mat.Cols() != 6 || mat.Type() != gocv.MatTypeCV8UC3 {
		t.Errorf("mat = %dx%d type %v", mat.Rows(), mat.Cols(), mat.Type())
	}

	px := mat.GetVecbAt(0, 0)
	if px[0] != 10 || px[1] != 20 || px[2] != 30 {
		t.Errorf("pixel = %v, want [10 20 30]", px)
	}
}

func TestFrame_ToMatRejectsBadFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"empty", Frame{}},
		{"bad channels", Frame{Data: make([]byte, 4*4*2), Width: 4, Height: 4, Channels: 2}},
		{"short data", Frame{Data: make([]byte, 10), Width: 4, Height: 4, Channels: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mat, err := tt.frame.ToMat()
			mat.Close()
			if err == nil {
				t.Error("ToMat() should fail")
			}
		})
	}
}

func TestFrame_Clone(t *testing.T) {
	f := Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, Channels: 3, Seq: 9}
	c := f.Clone()
	c.Data[0] = 99

	if f.Data[0] != 1 {
		t.Error("Clone() shares the backing array")
	}
	if c.Seq != 9 {
		t.Errorf("Clone().Seq = %d, want 9", c.Seq)
	}
}
