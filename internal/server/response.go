package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ayusman/posecam/internal/detector"
)

// sentinel is the landmarks value sent when no pose is available.
const sentinel = -1

// LandmarksResponse is the body of /get_landmarks and of websocket pushes:
// {"landmarks": [[x,y,z], ...]} or {"landmarks": -1}.
type LandmarksResponse struct {
	Landmarks [][3]float64
}

// NewLandmarksResponse converts a detection result, preserving landmark order.
func NewLandmarksResponse(res detector.Result) LandmarksResponse {
	if !res.Detected() {
		return LandmarksResponse{}
	}

	points := make([][3]float64, len(res.Landmarks))
	for i, l := range res.Landmarks {
		points[i] = l.Triple()
	}
	return LandmarksResponse{Landmarks: points}
}

// Detected reports whether the response carries landmarks.
func (r LandmarksResponse) Detected() bool {
	return len(r.Landmarks) > 0
}

// MarshalJSON implements json.Marshaler.
func (r LandmarksResponse) MarshalJSON() ([]byte, error) {
	if !r.Detected() {
		return json.Marshal(struct {
			Landmarks int `json:"landmarks"`
		}{sentinel})
	}

	return json.Marshal(struct {
		Landmarks [][3]float64 `json:"landmarks"`
	}{r.Landmarks})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *LandmarksResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Landmarks json.RawMessage `json:"landmarks"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if bytes.Equal(bytes.TrimSpace(raw.Landmarks), []byte("-1")) {
		r.Landmarks = nil
		return nil
	}

	var points [][3]float64
	if err := json.Unmarshal(raw.Landmarks, &points); err != nil {
		return fmt.Errorf("landmarks: %w", err)
	}
	r.Landmarks = points
	return nil
}

// encodeLandmarks returns the JSON body for res. A result that cannot be
// encoded is sent as the sentinel.
func encodeLandmarks(res detector.Result) []byte {
	body, err := json.Marshal(NewLandmarksResponse(res))
	if err != nil {
		slog.Error("failed to encode landmarks, sending sentinel", "error", err)
		body, _ = json.Marshal(LandmarksResponse{})
	}
	return body
}
