package biomech

import (
	"time"

	"github.com/google/uuid"
)

// ReadingType identifies the sensor family a reading came from.
type ReadingType string

const (
	// ReadingIMU is an inertial reading (accelerometer/gyro channels).
	// IMU channels sample at ~200 Hz on current garments.
	ReadingIMU ReadingType = "imu"

	// ReadingToF is a time-of-flight distance/pressure reading.
	// ToF taxels sample at ~100 Hz, half the IMU rate, which is why
	// analysis windows are bounded by time and never by frame count.
	ReadingToF ReadingType = "tof"
)

// SensorReading is a single multi-channel sample. Immutable once captured.
type SensorReading struct {
	Type       ReadingType
	Values     []float64 // fixed-length channel vector for the reading type
	Timestamp  time.Time
	Confidence float64 // capture confidence in [0,1]
	Raw        []byte  // original wire bytes, kept for replay/debugging
}

// FrameMetadata carries capture-side context attached by the ingestion
// layer. The core reads it but never mutates it.
type FrameMetadata struct {
	CalibrationVersion   string
	ProcessingSteps      []string
	Quality              float64 // capture quality in [0,100]
	EnvironmentalFactors map[string]float64
	ProcessingLatencyMs  float64
}

// SensorFrame is one ingest unit: all readings captured by a sensor at a
// timestamp, plus capture metadata. Created by the external ingestion
// layer and consumed read-only here.
type SensorFrame struct {
	SensorID    string
	Timestamp   time.Time
	Readings    []SensorReading
	Metadata    FrameMetadata
	SessionID   uuid.UUID
	DataQuality float64 // overall frame quality in [0,100]
}

// MuscleActivityResult holds per-channel activation derived from the IMU
// readings of an analysis window.
type MuscleActivityResult struct {
	// Intensity is indexed [channel][sample]; every value is the
	// normalized rectified signal energy in [0,1].
	Intensity [][]float64

	// PeakActivity is the per-channel maximum of Intensity, in [0,1].
	PeakActivity []float64

	// TemporalPattern is a coarse activation classification:
	// "sustained", "rhythmic" or "burst".
	TemporalPattern string
}

// MovementPatterns groups derived movement descriptors.
type MovementPatterns struct {
	// Symmetry is the normalized left/right channel agreement in [0,1];
	// 1 means perfectly symmetric activation.
	Symmetry float64

	// Smoothness is the inverse of normalized jerk in [0,1].
	Smoothness float64
}

// KinematicsResult holds integrated motion state for an analysis window.
type KinematicsResult struct {
	Velocity     []float64 // per-sample speed, trapezoidal integration of acceleration
	Acceleration []float64 // per-sample acceleration magnitude after calibration
	Patterns     MovementPatterns
	Quality      float64 // composite of frame DataQuality values, in [0,1]
}

// PressurePoint is a spatial location whose smoothed force exceeded the
// calibrated pressure threshold.
type PressurePoint struct {
	X, Y  float64 // garment-space coordinates after axis correction
	Force float64 // newtons, in [0,2000]
}

// ForceVector is the direction and magnitude of load at a pressure point.
type ForceVector struct {
	X, Y      float64 // origin of the vector in garment space
	Direction float64 // degrees, in [-180,180]
	Magnitude float64 // newtons, in [0,2000]
}

// LoadDistributionResult maps ToF-derived forces onto garment space.
type LoadDistributionResult struct {
	PressurePoints []PressurePoint
	ForceVectors   []ForceVector
	Distribution   []float64 // per-taxel smoothed force magnitudes, newtons
	PeakLoads      []PressurePoint
}

// PerformanceIndicators are the summary metrics shown alongside anomaly
// scores.
type PerformanceIndicators struct {
	Efficiency float64 // [0,1]
	Symmetry   float64 // [0,1]
	Technique  float64 // [0,1]
}

// AnomalyReport is the Performance Analyzer output for one window.
type AnomalyReport struct {
	MuscleActivity    float64 // summary activation level in [0,1]
	ForceDistribution float64 // summary load level in [0,1]
	RangeOfMotion     float64 // summary movement extent in [0,1]

	// AnomalyScores is aligned 1:1 with the measurement vector the
	// report was computed from; every score is in [0,1].
	AnomalyScores []float64

	Indicators PerformanceIndicators

	// Confidence expresses agreement among the anomaly scores, in [0,1].
	Confidence float64
}

// Transition describes how a real-time grid update should be blended with
// the previously emitted grid.
type Transition struct {
	Duration      time.Duration
	PreserveScale bool
}

// QuiverArrow is one vector-field overlay arrow on a heat map.
type QuiverArrow struct {
	X, Y      float64 // grid-space origin
	Direction float64 // degrees, in [-180,180]
	Magnitude float64 // display magnitude after ForceScale
}

// HeatMapGrid is a renderable interpolated grid. Z always has exactly
// resolution rows of resolution cells; no cell is ever NaN or infinite.
type HeatMapGrid struct {
	Z          [][]float64
	Type       string // always "heatmap"
	ColorScale string
	Quiver     []QuiverArrow // populated only when vector display is requested
	Transition *Transition   // populated only by real-time updates
}

// Resolution returns the edge length of the grid.
func (g *HeatMapGrid) Resolution() int { return len(g.Z) }

// clone returns a deep copy of the grid's cells. The generator hands out
// clones so callers can never alias its transition state.
func (g *HeatMapGrid) clone() *HeatMapGrid {
	out := &HeatMapGrid{
		Type:       g.Type,
		ColorScale: g.ColorScale,
	}
	out.Z = make([][]float64, len(g.Z))
	for i, row := range g.Z {
		out.Z[i] = make([]float64, len(row))
		copy(out.Z[i], row)
	}
	if len(g.Quiver) > 0 {
		out.Quiver = make([]QuiverArrow, len(g.Quiver))
		copy(out.Quiver, g.Quiver)
	}
	if g.Transition != nil {
		t := *g.Transition
		out.Transition = &t
	}
	return out
}

// clamp01 restricts v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampRange restricts v to [lo,hi].
func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
