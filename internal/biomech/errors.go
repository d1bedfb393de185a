package biomech

import (
	"context"
	"fmt"
	"time"
)

// InsufficientDataError reports an analysis window that is empty or spans
// too small a fraction of the configured sampling window.
type InsufficientDataError struct {
	FrameCount int           // frames supplied
	Span       time.Duration // time covered by the supplied frames
	MinSpan    time.Duration // minimum span required for analysis
}

func (e *InsufficientDataError) Error() string {
	if e.FrameCount == 0 {
		return "insufficient data: no frames in analysis window"
	}
	return fmt.Sprintf("insufficient data: %d frames span %v, need at least %v",
		e.FrameCount, e.Span, e.MinSpan)
}

// InvalidMeasurementError reports a malformed measurement vector: a NaN or
// infinite value, or a length that does not match the calibration layout.
type InvalidMeasurementError struct {
	Index  int     // position of the offending value (-1 for shape errors)
	Value  float64 // the offending value, if meaningful
	Reason string
}

func (e *InvalidMeasurementError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid measurement: %s", e.Reason)
	}
	return fmt.Sprintf("invalid measurement at index %d (value %v): %s",
		e.Index, e.Value, e.Reason)
}

// SequencingError reports a frame whose timestamp regresses behind the
// last accepted frame of the same stream. Out-of-order frames are
// rejected, never silently reordered.
type SequencingError struct {
	FrameTimestamp time.Time // timestamp of the rejected frame
	LastAccepted   time.Time // timestamp of the last accepted frame
}

func (e *SequencingError) Error() string {
	return fmt.Sprintf("out-of-order frame: timestamp %s precedes last accepted %s",
		e.FrameTimestamp.Format(time.RFC3339Nano), e.LastAccepted.Format(time.RFC3339Nano))
}

// DeadlineExceededError reports an operation that ran out of its share of
// the end-to-end latency budget. Partial results are discarded; the caller
// is expected to drop the frame and continue with the next one.
type DeadlineExceededError struct {
	Op     string        // the operation that timed out
	Budget time.Duration // the budget that was exceeded, if known
}

func (e *DeadlineExceededError) Error() string {
	if e.Budget > 0 {
		return fmt.Sprintf("%s: deadline exceeded (budget %v)", e.Op, e.Budget)
	}
	return fmt.Sprintf("%s: deadline exceeded", e.Op)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match, so callers
// using plain context idioms see the timeout without knowing this type.
func (e *DeadlineExceededError) Unwrap() error { return context.DeadlineExceeded }

// CalibrationError reports calibration parameters that cannot be used: a
// non-invertible calibration matrix or an out-of-range scalar.
type CalibrationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibration: %s = %v: %s", e.Field, e.Value, e.Reason)
}

// checkDeadline converts a cancelled or expired context into the package's
// typed deadline error. Call it at operation entry and before merging any
// parallel partial results.
func checkDeadline(ctx context.Context, op string) error {
	select {
	case <-ctx.Done():
		return &DeadlineExceededError{Op: op}
	default:
		return nil
	}
}
