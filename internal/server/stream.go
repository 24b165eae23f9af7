package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/posecam/internal/capture"
	"gocv.io/x/gocv"
)

// FrameSource provides the frames shown in the preview stream.
type FrameSource interface {
	Snapshot() (capture.Frame, bool)
}

// StreamHandler serves an MJPEG preview of the frame slot. It only reads
// snapshots, so any number of viewers can watch without touching the camera.
type StreamHandler struct {
	source   FrameSource
	interval time.Duration
	quit     chan struct{}
	stopOnce sync.Once
}

// NewStreamHandler creates a new StreamHandler polling source every interval.
func NewStreamHandler(source FrameSource, interval time.Duration) *StreamHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &StreamHandler{
		source:   source,
		interval: interval,
		quit:     make(chan struct{}),
	}
}

// Stop ends every open stream. Streams opened afterwards end immediately.
func (h *StreamHandler) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The stream outlives the server's write timeout.
	http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		frame, ok := h.source.Snapshot()
		if ok && frame.Seq != lastSeq {
			jpeg, err := encodeJPEG(frame)
			if err != nil {
				slog.Debug("failed to encode preview frame", "error", err, "seq", frame.Seq)
			} else {
				if err := writePart(w, jpeg); err != nil {
					return
				}
				lastSeq = frame.Seq
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-h.quit:
			return
		case <-ticker.C:
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func encodeJPEG(frame capture.Frame) ([]byte, error) {
	mat, err := frame.ToMat()
	if err != nil {
		mat.Close()
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
