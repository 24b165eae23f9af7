package capture

import (
	"sync"
	"time"
)

// Slot holds the most recent frame from the camera.
//
// One writer (the capture loop) replaces the frame, any number of readers take
// deep copies of it. The lock only covers the pointer swap on write and the
// copy on read; camera I/O and inference never happen while it is held.
type Slot struct {
	mu    sync.RWMutex
	frame *Frame
	seq   uint64
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Store replaces the current frame with f. The slot takes ownership of f.Data,
// so the caller must not modify it afterwards. The stored frame's Seq is
// assigned here and returned.
func (s *Slot) Store(f Frame) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	f.Seq = s.seq
	s.frame = &f

	return s.seq
}

// Snapshot returns a deep copy of the current frame, or false if nothing has
// been stored yet.
func (s *Slot) Snapshot() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frame == nil {
		return Frame{}, false
	}

	return s.frame.Clone(), true
}

// Info returns the sequence number and capture time of the current frame
// without copying its pixels.
func (s *Slot) Info() (seq uint64, capturedAt time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frame == nil {
		return 0, time.Time{}, false
	}

	return s.frame.Seq, s.frame.CapturedAt, true
}
