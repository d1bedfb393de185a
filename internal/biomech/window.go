package biomech

import (
	"time"
)

// AnalysisWindow accumulates frames for one sensor stream and evicts by
// timestamp age. Eviction is time-based rather than count-based because
// IMU (200 Hz) and ToF (100 Hz) channels fill a window at different rates.
//
// The window rejects timestamp regressions: a stream must be fed in
// arrival order, matching the per-stream ordering contract.
type AnalysisWindow struct {
	span   time.Duration
	frames []SensorFrame
	last   time.Time
}

// NewAnalysisWindow creates a window spanning at most span.
func NewAnalysisWindow(span time.Duration) *AnalysisWindow {
	if span <= 0 {
		span = 250 * time.Millisecond
	}
	return &AnalysisWindow{span: span}
}

// Push appends a frame and evicts frames older than the window span
// relative to the new frame. Frames older than the last accepted frame
// are rejected with a *SequencingError.
func (w *AnalysisWindow) Push(frame SensorFrame) error {
	if !w.last.IsZero() && frame.Timestamp.Before(w.last) {
		return &SequencingError{FrameTimestamp: frame.Timestamp, LastAccepted: w.last}
	}
	w.last = frame.Timestamp
	w.frames = append(w.frames, frame)

	cutoff := frame.Timestamp.Add(-w.span)
	evict := 0
	for evict < len(w.frames) && w.frames[evict].Timestamp.Before(cutoff) {
		evict++
	}
	if evict > 0 {
		// Shift in place rather than reslicing so the backing array is
		// reused and per-push allocation stays bounded.
		n := copy(w.frames, w.frames[evict:])
		w.frames = w.frames[:n]
	}
	return nil
}

// Frames returns the current window contents in arrival order. The slice
// is only valid until the next Push.
func (w *AnalysisWindow) Frames() []SensorFrame { return w.frames }

// Span returns the time covered by the frames currently in the window.
func (w *AnalysisWindow) Span() time.Duration {
	if len(w.frames) < 2 {
		return 0
	}
	return w.frames[len(w.frames)-1].Timestamp.Sub(w.frames[0].Timestamp)
}

// Len returns the number of buffered frames.
func (w *AnalysisWindow) Len() int { return len(w.frames) }

// Reset discards all buffered frames and ordering state.
func (w *AnalysisWindow) Reset() {
	w.frames = w.frames[:0]
	w.last = time.Time{}
}

// frameSpan is the time covered by an ordered frame slice.
func frameSpan(frames []SensorFrame) time.Duration {
	if len(frames) < 2 {
		return 0
	}
	return frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp)
}
