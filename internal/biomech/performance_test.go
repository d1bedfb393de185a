package biomech

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPerformance(t *testing.T, threshold float64) *PerformanceAnalyzer {
	t.Helper()
	p, err := NewPerformanceAnalyzer(testAnalyzer(t), PerformanceConfig{
		AnomalyThreshold: threshold,
		Logf:             func(string, ...interface{}) {},
	})
	require.NoError(t, err)
	return p
}

func TestDetectAnomalies(t *testing.T) {
	t.Parallel()

	t.Run("one score per measurement in input order", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		baseline := []float64{1, 1.1, 0.9, 1.05, 0.95, 1, 1, 1.02}
		measurements := []float64{1.0, 3.0, 0.99}

		scores, err := p.DetectAnomalies(measurements, baseline)
		require.NoError(t, err)
		require.Len(t, scores, len(measurements))
		for i, s := range scores {
			assert.GreaterOrEqual(t, s, 0.0, "score %d", i)
			assert.LessOrEqual(t, s, 1.0, "score %d", i)
		}
		// The outlier must score higher than the two in-family values.
		assert.Greater(t, scores[1], scores[0])
		assert.Greater(t, scores[1], scores[2])
	})

	t.Run("near-identical baseline flags a gross outlier", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		baseline := make([]float64, 100)
		for i := range baseline {
			baseline[i] = 0.5
		}

		scores, err := p.DetectAnomalies([]float64{5.0}, baseline)
		require.NoError(t, err)
		require.Len(t, scores, 1)
		assert.GreaterOrEqual(t, scores[0], p.AnomalyThreshold())
	})

	t.Run("baseline shorter than measurements is no prior data", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		baseline := []float64{1, 1, 1}
		measurements := []float64{1, 1, 50, 50, 50}

		scores, err := p.DetectAnomalies(measurements, baseline)
		require.NoError(t, err)
		require.Len(t, scores, 5)
		assert.Equal(t, 1.0, scores[2]) // covered by baseline, wildly off
		assert.Zero(t, scores[3])       // beyond baseline: no prior data
		assert.Zero(t, scores[4])
	})

	t.Run("empty baseline scores everything zero", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		scores, err := p.DetectAnomalies([]float64{1, 2, 3}, nil)
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 0, 0}, scores)
	})

	t.Run("non-finite measurement fails fast", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		_, err := p.DetectAnomalies([]float64{1, math.NaN()}, []float64{1, 1})

		var invalid *InvalidMeasurementError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, 1, invalid.Index)
	})

	t.Run("non-finite baseline fails fast", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		_, err := p.DetectAnomalies([]float64{1}, []float64{math.Inf(-1)})

		var invalid *InvalidMeasurementError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestCalculateConfidenceScore(t *testing.T) {
	t.Parallel()

	t.Run("all-zero scores give full confidence", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		assert.Equal(t, 1.0, p.CalculateConfidenceScore([]float64{0, 0, 0, 0, 0}))
	})

	t.Run("identical scores give full confidence", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		assert.Equal(t, 1.0, p.CalculateConfidenceScore([]float64{0.7, 0.7, 0.7}))
	})

	t.Run("maximally dispersed scores cap at half", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		scores := []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1}
		assert.LessOrEqual(t, p.CalculateConfidenceScore(scores), 0.5)
	})

	t.Run("confidence non-increasing in variance", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		rng := rand.New(rand.NewSource(7))

		type sample struct{ variance, confidence float64 }
		samples := make([]sample, 0, 200)
		for i := 0; i < 200; i++ {
			spread := rng.Float64() * 0.4
			scores := make([]float64, 20)
			for j := range scores {
				scores[j] = clamp01(0.5 + spread*math.Sin(float64(j)*1.7+rng.Float64()))
			}
			mean := meanOf(scores)
			variance := 0.0
			for _, s := range scores {
				variance += (s - mean) * (s - mean)
			}
			variance /= float64(len(scores) - 1)
			samples = append(samples, sample{variance, p.CalculateConfidenceScore(scores)})
		}

		sort.Slice(samples, func(i, j int) bool { return samples[i].variance < samples[j].variance })
		for i := 1; i < len(samples); i++ {
			assert.LessOrEqual(t, samples[i].confidence, samples[i-1].confidence+1e-12,
				"confidence rose with variance at sample %d", i)
		}
	})
}

func TestAnalyzeSensorData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("produces a complete bounded report", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		baseline := make([]float64, 16)
		for i := range baseline {
			baseline[i] = 0.4
		}

		report, err := p.AnalyzeSensorData(ctx, sineSession(40), baseline)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, report.MuscleActivity, 0.0)
		assert.LessOrEqual(t, report.MuscleActivity, 1.0)
		assert.GreaterOrEqual(t, report.ForceDistribution, 0.0)
		assert.LessOrEqual(t, report.ForceDistribution, 1.0)
		assert.GreaterOrEqual(t, report.RangeOfMotion, 0.0)
		assert.LessOrEqual(t, report.RangeOfMotion, 1.0)
		assert.GreaterOrEqual(t, report.Confidence, 0.0)
		assert.LessOrEqual(t, report.Confidence, 1.0)
		require.NotEmpty(t, report.AnomalyScores)
		for _, s := range report.AnomalyScores {
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
		assert.GreaterOrEqual(t, report.Indicators.Symmetry, 0.0)
		assert.LessOrEqual(t, report.Indicators.Symmetry, 1.0)
	})

	t.Run("short-circuits on upstream failure", func(t *testing.T) {
		t.Parallel()
		p := testPerformance(t, 0.85)
		_, err := p.AnalyzeSensorData(ctx, nil, nil)

		var insufficient *InsufficientDataError
		require.ErrorAs(t, err, &insufficient)
	})
}

func TestNewPerformanceAnalyzerRejectsBadThreshold(t *testing.T) {
	t.Parallel()
	_, err := NewPerformanceAnalyzer(testAnalyzer(t), PerformanceConfig{AnomalyThreshold: 1.5})

	var calErr *CalibrationError
	require.ErrorAs(t, err, &calErr)
}
