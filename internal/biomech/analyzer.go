package biomech

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/stridewear/kinetics/internal/monitoring"
)

// Temporal pattern classifications reported by AnalyzeMuscleActivity.
const (
	PatternSustained = "sustained"
	PatternRhythmic  = "rhythmic"
	PatternBurst     = "burst"
)

// defaultMinWindowFraction is the minimum fraction of the sampling window
// a frame batch must span before analysis is attempted.
const defaultMinWindowFraction = 0.5

// loadSmoothingAlpha is the EMA coefficient used to smooth per-taxel force
// across the frames of a window before thresholding.
const loadSmoothingAlpha = 0.3

// AnalyzerConfig configures a BiomechanicsAnalyzer.
type AnalyzerConfig struct {
	// Calibration is validated at construction; a non-invertible matrix
	// or out-of-range scalar fails with *CalibrationError.
	Calibration CalibrationParams

	// SamplingWindow is the analysis window budget. Zero falls back to
	// Calibration.SampleWindow.
	SamplingWindow time.Duration

	// MinWindowFraction is the fraction of SamplingWindow a batch must
	// span. Zero uses the default (0.5).
	MinWindowFraction float64

	// Logf is the diagnostic sink. Nil uses monitoring.Logf.
	Logf monitoring.Sink
}

// BiomechanicsAnalyzer computes muscle activity, movement kinematics and
// load distribution from a windowed batch of sensor frames. All three
// operations are pure over their inputs: identical frames and calibration
// produce identical results.
type BiomechanicsAnalyzer struct {
	cal         CalibrationParams
	window      time.Duration
	minFraction float64
	logf        monitoring.Sink
}

// NewBiomechanicsAnalyzer validates calibration and builds an analyzer.
func NewBiomechanicsAnalyzer(cfg AnalyzerConfig) (*BiomechanicsAnalyzer, error) {
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, err
	}
	window := cfg.SamplingWindow
	if window <= 0 {
		window = cfg.Calibration.SampleWindow
	}
	minFraction := cfg.MinWindowFraction
	if minFraction <= 0 {
		minFraction = defaultMinWindowFraction
	}
	logf := cfg.Logf
	if logf == nil {
		logf = monitoring.Logf
	}
	return &BiomechanicsAnalyzer{
		cal:         cfg.Calibration,
		window:      window,
		minFraction: minFraction,
		logf:        logf,
	}, nil
}

// newConditioner builds a fresh filter for one invocation. Filter state is
// never shared across calls, which keeps concurrent invocations on one
// analyzer race-free.
func (a *BiomechanicsAnalyzer) newConditioner(channels int) *signalConditioner {
	return newSignalConditioner(a.cal.IMUDriftCorrection, 1.0, a.cal.FilterCutoffHz, channels)
}

// SamplingWindow returns the configured analysis window budget.
func (a *BiomechanicsAnalyzer) SamplingWindow() time.Duration { return a.window }

// Calibration returns the immutable calibration the analyzer was built with.
func (a *BiomechanicsAnalyzer) Calibration() CalibrationParams { return a.cal }

// checkWindow enforces the minimum-span contract shared by all three
// operations.
func (a *BiomechanicsAnalyzer) checkWindow(frames []SensorFrame) error {
	if len(frames) == 0 {
		return &InsufficientDataError{FrameCount: 0, MinSpan: a.minSpan()}
	}
	// A single frame spans zero time and never satisfies the minimum.
	if span := frameSpan(frames); span < a.minSpan() {
		return &InsufficientDataError{FrameCount: len(frames), Span: span, MinSpan: a.minSpan()}
	}
	return nil
}

func (a *BiomechanicsAnalyzer) minSpan() time.Duration {
	return time.Duration(float64(a.window) * a.minFraction)
}

// imuSample is one validated IMU reading flattened out of the frame batch.
type imuSample struct {
	values []float64
	ts     time.Time
}

// collectIMU extracts IMU readings in timestamp order and validates every
// channel value. Malformed values fail fast rather than being substituted.
func (a *BiomechanicsAnalyzer) collectIMU(frames []SensorFrame) ([]imuSample, int, error) {
	samples := make([]imuSample, 0, len(frames)*4)
	channels := 0
	for _, f := range frames {
		for _, r := range f.Readings {
			if r.Type != ReadingIMU {
				continue
			}
			if channels == 0 {
				channels = len(r.Values)
			}
			if len(r.Values) != channels {
				return nil, 0, &InvalidMeasurementError{
					Index:  -1,
					Reason: "IMU channel count changed mid-window",
				}
			}
			for i, v := range r.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, 0, &InvalidMeasurementError{Index: i, Value: v, Reason: "non-finite IMU sample"}
				}
			}
			samples = append(samples, imuSample{values: r.Values, ts: r.Timestamp})
		}
	}
	return samples, channels, nil
}

// AnalyzeMuscleActivity applies drift correction, gain and band-limiting
// to each IMU reading, then computes per-channel intensity as normalized
// rectified signal energy over the window.
func (a *BiomechanicsAnalyzer) AnalyzeMuscleActivity(ctx context.Context, frames []SensorFrame) (MuscleActivityResult, error) {
	if err := checkDeadline(ctx, "AnalyzeMuscleActivity"); err != nil {
		return MuscleActivityResult{}, err
	}
	if err := a.checkWindow(frames); err != nil {
		return MuscleActivityResult{}, err
	}
	samples, channels, err := a.collectIMU(frames)
	if err != nil {
		return MuscleActivityResult{}, err
	}
	if len(samples) == 0 {
		return MuscleActivityResult{}, &InsufficientDataError{
			FrameCount: len(frames), Span: frameSpan(frames), MinSpan: a.minSpan(),
		}
	}

	cond := a.newConditioner(channels)

	// Rectified energy per channel per sample, filtered at the cutoff.
	energy := make([][]float64, channels)
	for ch := range energy {
		energy[ch] = make([]float64, len(samples))
	}
	maxEnergy := 0.0
	var prev time.Time
	for i, s := range samples {
		dt := 0.0
		if i > 0 {
			dt = s.ts.Sub(prev).Seconds()
		}
		prev = s.ts
		for ch := 0; ch < channels; ch++ {
			v := cond.condition(ch, s.values[ch], dt)
			e := v * v
			energy[ch][i] = e
			if e > maxEnergy {
				maxEnergy = e
			}
		}
	}
	if maxEnergy == 0 {
		maxEnergy = 1 // silent window: intensities stay zero
	}

	result := MuscleActivityResult{
		Intensity:    energy,
		PeakActivity: make([]float64, channels),
	}
	for ch := range energy {
		peak := 0.0
		for i := range energy[ch] {
			energy[ch][i] = clamp01(energy[ch][i] / maxEnergy)
			if energy[ch][i] > peak {
				peak = energy[ch][i]
			}
		}
		result.PeakActivity[ch] = peak
	}
	result.TemporalPattern = classifyTemporalPattern(energy)

	a.logf("biomech: muscle activity over %d samples, %d channels, pattern=%s",
		len(samples), channels, result.TemporalPattern)
	return result, nil
}

// classifyTemporalPattern labels the window from the channel-mean
// intensity series: low variation is sustained effort, high lag-1
// autocorrelation is rhythmic, the rest is burst activity.
func classifyTemporalPattern(intensity [][]float64) string {
	if len(intensity) == 0 || len(intensity[0]) < 3 {
		return PatternSustained
	}
	n := len(intensity[0])
	mean := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for ch := range intensity {
			sum += intensity[ch][i]
		}
		mean[i] = sum / float64(len(intensity))
	}

	m, v := stat.MeanVariance(mean, nil)
	if m == 0 {
		return PatternSustained
	}
	cv := math.Sqrt(v) / m
	if cv < 0.25 {
		return PatternSustained
	}

	// Lag-1 autocorrelation of the mean intensity series.
	num, den := 0.0, 0.0
	for i := 0; i < n; i++ {
		d := mean[i] - m
		den += d * d
		if i > 0 {
			num += d * (mean[i-1] - m)
		}
	}
	if den > 0 && num/den > 0.5 {
		return PatternRhythmic
	}
	return PatternBurst
}

// AnalyzeMovementKinematics integrates corrected acceleration to velocity
// using trapezoidal integration and derives symmetry and quality.
func (a *BiomechanicsAnalyzer) AnalyzeMovementKinematics(ctx context.Context, frames []SensorFrame) (KinematicsResult, error) {
	if err := checkDeadline(ctx, "AnalyzeMovementKinematics"); err != nil {
		return KinematicsResult{}, err
	}
	if err := a.checkWindow(frames); err != nil {
		return KinematicsResult{}, err
	}
	samples, channels, err := a.collectIMU(frames)
	if err != nil {
		return KinematicsResult{}, err
	}
	if len(samples) == 0 {
		return KinematicsResult{}, &InsufficientDataError{
			FrameCount: len(frames), Span: frameSpan(frames), MinSpan: a.minSpan(),
		}
	}

	cond := a.newConditioner(channels)

	axes := channels
	if axes > 3 {
		axes = 3
	}

	// Double-precision accumulation bounds integration drift over the
	// window; the window itself is short enough that no further drift
	// correction is needed.
	accel := make([]float64, len(samples))
	velocity := make([]float64, len(samples))
	chanEnergy := make([]float64, channels)
	var prev time.Time
	for i, s := range samples {
		dt := 0.0
		if i > 0 {
			dt = s.ts.Sub(prev).Seconds()
		}
		prev = s.ts

		sq := 0.0
		for ch := 0; ch < channels; ch++ {
			v := cond.condition(ch, s.values[ch], dt)
			if ch < axes {
				sq += v * v
			}
			chanEnergy[ch] += v * v
		}
		accel[i] = math.Sqrt(sq)
		if i > 0 {
			velocity[i] = velocity[i-1] + 0.5*(accel[i]+accel[i-1])*dt
		}
	}

	result := KinematicsResult{
		Velocity:     velocity,
		Acceleration: accel,
		Patterns: MovementPatterns{
			Symmetry:   pairedSymmetry(chanEnergy),
			Smoothness: movementSmoothness(accel),
		},
		Quality: windowQuality(frames),
	}
	return result, nil
}

// pairedSymmetry compares left/right channel pairs: channel i pairs with
// channel i+n/2 by garment convention. Returns 1 for perfect agreement.
func pairedSymmetry(chanEnergy []float64) float64 {
	half := len(chanEnergy) / 2
	if half == 0 {
		return 1
	}
	sum := 0.0
	for i := 0; i < half; i++ {
		l, r := chanEnergy[i], chanEnergy[i+half]
		if l+r == 0 {
			sum += 1
			continue
		}
		sum += 1 - math.Abs(l-r)/(l+r)
	}
	return clamp01(sum / float64(half))
}

// movementSmoothness is the inverse of normalized jerk: 1 for perfectly
// smooth acceleration, approaching 0 as sample-to-sample change dominates
// the acceleration range.
func movementSmoothness(accel []float64) float64 {
	if len(accel) < 3 {
		return 1
	}
	minA, maxA := accel[0], accel[0]
	sumJerk := 0.0
	for i := 1; i < len(accel); i++ {
		sumJerk += math.Abs(accel[i] - accel[i-1])
		if accel[i] < minA {
			minA = accel[i]
		}
		if accel[i] > maxA {
			maxA = accel[i]
		}
	}
	span := maxA - minA
	if span == 0 {
		return 1
	}
	meanJerk := sumJerk / float64(len(accel)-1)
	return clamp01(1 - meanJerk/span)
}

// windowQuality is the mean frame DataQuality scaled to [0,1].
func windowQuality(frames []SensorFrame) float64 {
	if len(frames) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range frames {
		sum += f.DataQuality
	}
	return clamp01(sum / float64(len(frames)) / 100.0)
}

// CalculateLoadDistribution maps ToF-derived forces onto garment space via
// the calibration matrix. A taxel becomes a pressure point when its
// smoothed force exceeds the calibrated pressure threshold.
func (a *BiomechanicsAnalyzer) CalculateLoadDistribution(ctx context.Context, frames []SensorFrame) (LoadDistributionResult, error) {
	if err := checkDeadline(ctx, "CalculateLoadDistribution"); err != nil {
		return LoadDistributionResult{}, err
	}
	if err := a.checkWindow(frames); err != nil {
		return LoadDistributionResult{}, err
	}

	// Smooth per-taxel force across the window with an EMA. Taxel count
	// is fixed by the garment, so the first ToF reading sizes the state.
	var smoothed []float64
	taxels := 0
	for _, f := range frames {
		tempDeviation := 0.0
		if t, ok := f.Metadata.EnvironmentalFactors["temperature_c"]; ok {
			tempDeviation = t - 20.0
		}
		for _, r := range f.Readings {
			if r.Type != ReadingToF {
				continue
			}
			if taxels == 0 {
				taxels = len(r.Values)
				smoothed = make([]float64, taxels)
			}
			if len(r.Values) != taxels {
				return LoadDistributionResult{}, &InvalidMeasurementError{
					Index:  -1,
					Reason: "ToF taxel count changed mid-window",
				}
			}
			for i, v := range r.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return LoadDistributionResult{}, &InvalidMeasurementError{Index: i, Value: v, Reason: "non-finite ToF sample"}
				}
				force := v * a.cal.ToFGain
				force *= 1 + a.cal.TemperatureCompensation*tempDeviation
				force = clampRange(force, 0, MaxForceNewtons)
				smoothed[i] += loadSmoothingAlpha * (force - smoothed[i])
			}
		}
	}
	if taxels == 0 {
		return LoadDistributionResult{}, &InsufficientDataError{
			FrameCount: len(frames), Span: frameSpan(frames), MinSpan: a.minSpan(),
		}
	}

	side := int(math.Ceil(math.Sqrt(float64(taxels))))
	result := LoadDistributionResult{
		Distribution:   smoothed,
		PressurePoints: make([]PressurePoint, 0, taxels/4),
		ForceVectors:   make([]ForceVector, 0, taxels/4),
		PeakLoads:      make([]PressurePoint, 0, 4),
	}

	forceAt := func(col, row int) float64 {
		if col < 0 || row < 0 || col >= side || row >= side {
			return 0
		}
		idx := row*side + col
		if idx >= taxels {
			return 0
		}
		return smoothed[idx]
	}

	for t := 0; t < taxels; t++ {
		force := smoothed[t]
		if force <= a.cal.PressureThreshold {
			continue
		}
		col, row := t%side, t/side
		x, y := a.cal.axisCorrect(float64(col), float64(row))
		result.PressurePoints = append(result.PressurePoints, PressurePoint{X: x, Y: y, Force: force})

		// Direction follows the local force gradient across the lattice.
		gx := forceAt(col+1, row) - forceAt(col-1, row)
		gy := forceAt(col, row+1) - forceAt(col, row-1)
		dir := 0.0
		if gx != 0 || gy != 0 {
			dir = math.Atan2(gy, gx) * 180 / math.Pi
		}
		result.ForceVectors = append(result.ForceVectors, ForceVector{
			X: x, Y: y,
			Direction: clampRange(dir, -180, 180),
			Magnitude: force,
		})

		if force >= forceAt(col-1, row) && force >= forceAt(col+1, row) &&
			force >= forceAt(col, row-1) && force >= forceAt(col, row+1) {
			result.PeakLoads = append(result.PeakLoads, PressurePoint{X: x, Y: y, Force: force})
		}
	}

	a.logf("biomech: load distribution over %d taxels, %d pressure points, %d peaks",
		taxels, len(result.PressurePoints), len(result.PeakLoads))
	return result, nil
}
