package capture

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// ErrEmptyFrame is returned when a frame has no pixel data.
var ErrEmptyFrame = errors.New("frame is empty")

// Frame is a captured raster image copied out of OpenCV memory.
// Data is row-major with Channels interleaved 8-bit samples per pixel,
// in the device-native (BGR) channel order.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Channels   int
	Seq        uint64
	CapturedAt time.Time
}

// FrameFromMat copies the pixels of mat into a new Frame.
// Only 8-bit matrices are supported.
func FrameFromMat(mat *gocv.Mat) (Frame, error) {
	if mat == nil || mat.Empty() {
		return Frame{}, ErrEmptyFrame
	}

	if mat.Type() != gocv.MatTypeCV8UC1 && mat.Type() != gocv.MatTypeCV8UC3 && mat.Type() != gocv.MatTypeCV8UC4 {
		return Frame{}, fmt.Errorf("unsupported mat type %v", mat.Type())
	}

	// ToBytes copies into Go memory.
	return Frame{
		Data:       mat.ToBytes(),
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		Channels:   mat.Channels(),
		CapturedAt: time.Now(),
	}, nil
}

// Empty reports whether the frame has no pixels.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width == 0 || f.Height == 0
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	c := f
	if f.Data != nil {
		c.Data = make([]byte, len(f.Data))
		copy(c.Data, f.Data)
	}
	return c
}

// ToMat wraps the frame pixels in a gocv.Mat. The Mat shares the frame's
// backing array, so the frame must not be modified while the Mat is in use.
// The caller is responsible for closing the returned Mat.
func (f Frame) ToMat() (gocv.Mat, error) {
	if f.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}

	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV8UC1
	case 3:
		mt = gocv.MatTypeCV8UC3
	case 4:
		mt = gocv.MatTypeCV8UC4
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", f.Channels)
	}

	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return gocv.NewMat(), fmt.Errorf("frame data is %d bytes, want %d", len(f.Data), want)
	}

	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
}
