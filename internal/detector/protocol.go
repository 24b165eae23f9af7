package detector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize bounds a single message from the pose service.
const maxMessageSize = 64 << 20

// ErrMessageTooLarge is returned when a length prefix exceeds maxMessageSize.
var ErrMessageTooLarge = errors.New("message too large")

// poseRequest is sent to the pose service for each frame.
type poseRequest struct {
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Channels int    `msgpack:"channels"`
	Pixels   []byte `msgpack:"pixels"`
}

// poseResponse is returned by the pose service. Landmarks is empty when no
// pose was found; Error is set when the model failed on this frame.
type poseResponse struct {
	Landmarks [][]float64 `msgpack:"landmarks"`
	Error     string      `msgpack:"error"`
}

// readyMessage is the first message the pose service writes, once the model
// is loaded or has failed to load.
type readyMessage struct {
	Ready bool   `msgpack:"ready"`
	Error string `msgpack:"error"`
}

func (m readyMessage) err() error {
	switch {
	case m.Error != "":
		return fmt.Errorf("%w: %s", ErrNotReady, m.Error)
	case !m.Ready:
		return ErrNotReady
	}
	return nil
}

// writeMessage writes v as a big-endian uint32 length prefix followed by its
// msgpack encoding.
func writeMessage(w io.Writer, v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write data: %w", err)
	}

	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read length: %w", err)
	}

	n := binary.BigEndian.Uint32(header)
	if n > maxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return nil
}

// toResult validates a response and converts it to a Result.
func (p poseResponse) toResult() (Result, error) {
	if p.Error != "" {
		return NotDetected, fmt.Errorf("pose service: %s", p.Error)
	}

	if len(p.Landmarks) == 0 {
		return NotDetected, nil
	}

	if len(p.Landmarks) != NumLandmarks {
		return NotDetected, fmt.Errorf("pose service returned %d landmarks, want %d", len(p.Landmarks), NumLandmarks)
	}

	landmarks := make([]Landmark, len(p.Landmarks))
	for i, pt := range p.Landmarks {
		if len(pt) != 3 {
			return NotDetected, fmt.Errorf("landmark %d has %d coordinates, want 3", i, len(pt))
		}
		for _, v := range pt {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return NotDetected, fmt.Errorf("landmark %d has non-finite coordinate %v", i, v)
			}
		}
		landmarks[i] = Landmark{X: pt[0], Y: pt[1], Z: pt[2]}
	}

	return Detected(landmarks), nil
}
