package biomech

import (
	"context"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/stridewear/kinetics/internal/monitoring"
)

// madConsistency rescales MAD to the standard deviation of a normal
// distribution, and anomalySigma is the deviation (in rescaled MADs)
// mapped to an anomaly score of 1.0.
const (
	madConsistency = 1.4826
	anomalySigma   = 3.0
)

// PerformanceConfig configures a PerformanceAnalyzer.
type PerformanceConfig struct {
	// AnomalyThreshold in [0,1]; scores at or above it denote a flagged
	// anomaly. Zero uses the default (0.85).
	AnomalyThreshold float64

	// SamplingWindow is carried for reporting; it matches the window of
	// the Biomechanics Analyzer feeding this one.
	SamplingWindow time.Duration

	// Logf is the diagnostic sink. Nil uses monitoring.Logf.
	Logf monitoring.Sink
}

// PerformanceAnalyzer scores biomechanics output against an athlete
// baseline. The baseline is owned by the caller and passed per call; the
// analyzer never persists or mutates it.
type PerformanceAnalyzer struct {
	bio       *BiomechanicsAnalyzer
	threshold float64
	window    time.Duration
	logf      monitoring.Sink
}

// NewPerformanceAnalyzer builds an analyzer over the given biomechanics
// stage.
func NewPerformanceAnalyzer(bio *BiomechanicsAnalyzer, cfg PerformanceConfig) (*PerformanceAnalyzer, error) {
	threshold := cfg.AnomalyThreshold
	if threshold == 0 {
		threshold = 0.85
	}
	if threshold < 0 || threshold > 1 {
		return nil, &CalibrationError{Field: "AnomalyThreshold", Value: threshold, Reason: "must be in [0,1]"}
	}
	logf := cfg.Logf
	if logf == nil {
		logf = monitoring.Logf
	}
	window := cfg.SamplingWindow
	if window <= 0 && bio != nil {
		window = bio.SamplingWindow()
	}
	return &PerformanceAnalyzer{
		bio:       bio,
		threshold: threshold,
		window:    window,
		logf:      logf,
	}, nil
}

// AnomalyThreshold returns the configured flagging threshold.
func (p *PerformanceAnalyzer) AnomalyThreshold() float64 { return p.threshold }

// AnalyzeSensorData runs the biomechanics stage over the window, derives a
// measurement vector, and scores it against the supplied baseline. Any
// upstream failure short-circuits: no partial report is produced.
func (p *PerformanceAnalyzer) AnalyzeSensorData(ctx context.Context, frames []SensorFrame, baseline []float64) (AnomalyReport, error) {
	if err := checkDeadline(ctx, "AnalyzeSensorData"); err != nil {
		return AnomalyReport{}, err
	}

	activity, err := p.bio.AnalyzeMuscleActivity(ctx, frames)
	if err != nil {
		return AnomalyReport{}, err
	}
	kinematics, err := p.bio.AnalyzeMovementKinematics(ctx, frames)
	if err != nil {
		return AnomalyReport{}, err
	}
	load, err := p.bio.CalculateLoadDistribution(ctx, frames)
	if err != nil {
		return AnomalyReport{}, err
	}
	if err := checkDeadline(ctx, "AnalyzeSensorData"); err != nil {
		return AnomalyReport{}, err
	}

	measurements := deriveMeasurements(activity, kinematics, load)
	scores, err := p.DetectAnomalies(measurements, baseline)
	if err != nil {
		return AnomalyReport{}, err
	}

	report := AnomalyReport{
		MuscleActivity:    meanOf(activity.PeakActivity),
		ForceDistribution: clamp01(meanOf(load.Distribution) / MaxForceNewtons),
		RangeOfMotion:     rangeOfMotion(kinematics.Velocity),
		AnomalyScores:     scores,
		Indicators:        deriveIndicators(activity, kinematics, scores),
		Confidence:        p.CalculateConfidenceScore(scores),
	}

	flagged := 0
	for _, s := range scores {
		if s >= p.threshold {
			flagged++
		}
	}
	if flagged > 0 {
		p.logf("performance: %d/%d measurements flagged (threshold %.2f, confidence %.2f)",
			flagged, len(scores), p.threshold, report.Confidence)
	}
	return report, nil
}

// deriveMeasurements flattens the window's biomechanics output into the
// scalar vector scored against the baseline: per-channel peak activity,
// then peak velocity, then mean force (normalized to [0,~1] scale-free
// units so one baseline series covers the whole vector).
func deriveMeasurements(activity MuscleActivityResult, kinematics KinematicsResult, load LoadDistributionResult) []float64 {
	m := make([]float64, 0, len(activity.PeakActivity)+2)
	m = append(m, activity.PeakActivity...)
	peakV := 0.0
	for _, v := range kinematics.Velocity {
		if v > peakV {
			peakV = v
		}
	}
	m = append(m, peakV)
	m = append(m, meanOf(load.Distribution)/MaxForceNewtons)
	return m
}

// deriveIndicators computes the summary performance indicators.
func deriveIndicators(activity MuscleActivityResult, kinematics KinematicsResult, scores []float64) PerformanceIndicators {
	// Efficiency: smooth movement per unit activation. Heavy activation
	// for the same smoothness reads as wasted effort.
	efficiency := clamp01(kinematics.Patterns.Smoothness * (1 - 0.4*meanOf(activity.PeakActivity)))

	// Technique: agreement with baseline expectations, penalised by the
	// mean anomaly score and weighted by window quality.
	technique := clamp01((1 - meanOf(scores)) * kinematics.Quality)

	return PerformanceIndicators{
		Efficiency: efficiency,
		Symmetry:   kinematics.Patterns.Symmetry,
		Technique:  technique,
	}
}

// DetectAnomalies returns one score per measurement, in input order. The
// score is the measurement's deviation from the baseline median in
// MAD-rescaled units, mapped into [0,1]. Measurements beyond the baseline
// length score 0: no prior data is not an error.
func (p *PerformanceAnalyzer) DetectAnomalies(measurements, baseline []float64) ([]float64, error) {
	for i, m := range measurements {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, &InvalidMeasurementError{Index: i, Value: m, Reason: "non-finite measurement"}
		}
	}
	for i, b := range baseline {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return nil, &InvalidMeasurementError{Index: i, Value: b, Reason: "non-finite baseline value"}
		}
	}

	scores := make([]float64, len(measurements))
	if len(baseline) == 0 {
		return scores, nil
	}

	med, mad := medianMAD(baseline)
	// A flat baseline has zero MAD; fall back to a fraction of the median
	// magnitude so any real deviation still registers.
	scale := anomalySigma * madConsistency * mad
	if scale == 0 {
		scale = anomalySigma * math.Max(math.Abs(med)*0.1, 1e-6)
	}

	for i, m := range measurements {
		if i >= len(baseline) {
			// No prior data for this measurement position.
			scores[i] = 0
			continue
		}
		scores[i] = clamp01(math.Abs(m-med) / scale)
	}
	return scores, nil
}

// medianMAD returns the robust baseline statistics: the median and the
// median absolute deviation.
func medianMAD(values []float64) (med, mad float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	med = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - med)
	}
	sort.Float64s(dev)
	mad = stat.Quantile(0.5, stat.Empirical, dev, nil)
	return med, mad
}

// CalculateConfidenceScore expresses agreement among anomaly scores as
// confidence = 1 - min(1, 2*stddev(scores)), clamped to [0,1]. All-zero
// scores give 1.0; a maximally dispersed [0,1] score vector (stddev 0.5)
// gives 0. Confidence is monotonically non-increasing in score variance.
func (p *PerformanceAnalyzer) CalculateConfidenceScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 1
	}
	_, variance := stat.MeanVariance(scores, nil)
	return clamp01(1 - 2*math.Sqrt(variance))
}

// meanOf is the arithmetic mean, 0 for an empty slice.
func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// rangeOfMotion normalizes the velocity span of the window into [0,1]
// against a nominal 5 m/s athletic ceiling.
func rangeOfMotion(velocity []float64) float64 {
	if len(velocity) == 0 {
		return 0
	}
	minV, maxV := velocity[0], velocity[0]
	for _, v := range velocity {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	const nominalSpan = 5.0
	return clamp01((maxV - minV) / nominalSpan)
}
