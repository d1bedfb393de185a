package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridewear/kinetics/internal/biomech"
	"github.com/stridewear/kinetics/internal/testutil"
	"github.com/stridewear/kinetics/internal/timeutil"
)

func testRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	analyzer, err := biomech.NewBiomechanicsAnalyzer(biomech.AnalyzerConfig{
		Calibration: biomech.IdentityCalibration(),
		Logf:        func(string, ...interface{}) {},
	})
	require.NoError(t, err)
	perf, err := biomech.NewPerformanceAnalyzer(analyzer, biomech.PerformanceConfig{
		Logf: func(string, ...interface{}) {},
	})
	require.NoError(t, err)
	heatmap, err := biomech.NewHeatMapGenerator(analyzer, perf, biomech.GeneratorConfig{
		Resolution:  16,
		WorkerCount: 2,
		Logf:        func(string, ...interface{}) {},
	})
	require.NoError(t, err)

	cfg.Analyzer = analyzer
	cfg.Performance = perf
	cfg.HeatMap = heatmap
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...interface{}) {}
	}
	rt, err := New(cfg)
	require.NoError(t, err)
	return rt
}

func TestProcessFrameSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rt := testRuntime(t, Config{})
	session := testutil.Session(testutil.SessionParams{Frames: 100, Interval: 10 * time.Millisecond})
	baseline := testutil.FlatBaseline(100, 0.5)

	cycles := 0
	var last *CycleResult
	for _, frame := range session {
		result, err := rt.ProcessFrame(ctx, frame, baseline)
		if err != nil {
			// The window warms up for the first 125ms of the stream.
			var insufficient *biomech.InsufficientDataError
			require.ErrorAs(t, err, &insufficient)
			assert.Zero(t, cycles, "warmup error after a successful cycle")
			continue
		}
		cycles++
		last = result
	}

	require.NotNil(t, last, "no cycle completed over a 1s session")
	assert.Greater(t, cycles, 50)

	assert.Less(t, last.Elapsed, DefaultBudget)
	assert.Greater(t, last.FramesInWindow, 1)
	assert.Equal(t, 16, last.Grid.Resolution())
	for r, row := range last.Grid.Z {
		for c, v := range row {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "cell (%d,%d) = %v", r, c, v)
		}
	}
	assert.GreaterOrEqual(t, last.Report.Confidence, 0.0)
	assert.LessOrEqual(t, last.Report.Confidence, 1.0)
	require.NotEmpty(t, last.Report.AnomalyScores)
}

func TestProcessFrameExpiredContext(t *testing.T) {
	t.Parallel()

	rt := testRuntime(t, Config{})
	session := testutil.Session(testutil.SessionParams{Frames: 1})

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := rt.ProcessFrame(expired, session[0], nil)
	var deadline *biomech.DeadlineExceededError
	require.ErrorAs(t, err, &deadline)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The frame was still admitted to the window before the cycle ran.
	assert.Equal(t, 1, rt.WindowLen())
}

func TestProcessFrameOutOfOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rt := testRuntime(t, Config{})
	session := testutil.Session(testutil.SessionParams{Frames: 4, Interval: 10 * time.Millisecond})

	for _, frame := range session {
		_, err := rt.ProcessFrame(ctx, frame, nil)
		var insufficient *biomech.InsufficientDataError
		require.ErrorAs(t, err, &insufficient)
	}
	before := rt.WindowLen()

	_, err := rt.ProcessFrame(ctx, session[0], nil)
	var seq *biomech.SequencingError
	require.ErrorAs(t, err, &seq)
	assert.Equal(t, before, rt.WindowLen(), "rejected frame must not enter the window")
}

// slowClock reports a fixed elapsed duration for every cycle.
type slowClock struct {
	timeutil.RealClock
	elapsed time.Duration
}

func (c slowClock) Since(time.Time) time.Duration { return c.elapsed }

func TestProcessFrameOverBudgetLogging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var logged []string
	rt := testRuntime(t, Config{
		Clock: slowClock{elapsed: 150 * time.Millisecond},
		Logf: func(format string, args ...interface{}) {
			logged = append(logged, fmt.Sprintf(format, args...))
		},
	})

	session := testutil.Session(testutil.SessionParams{Frames: 40, Interval: 10 * time.Millisecond})
	completed := 0
	for _, frame := range session {
		result, err := rt.ProcessFrame(ctx, frame, nil)
		if err != nil {
			continue
		}
		completed++
		assert.Equal(t, 150*time.Millisecond, result.Elapsed)
	}

	require.Greater(t, completed, 0)
	require.NotEmpty(t, logged, "over-budget cycles must be logged")
	assert.Contains(t, logged[0], "over the")
}

func TestRuntimeReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rt := testRuntime(t, Config{})
	session := testutil.Session(testutil.SessionParams{Frames: 10, Interval: 10 * time.Millisecond})
	for _, frame := range session {
		_, _ = rt.ProcessFrame(ctx, frame, nil) // warmup only
	}
	require.Greater(t, rt.WindowLen(), 0)

	rt.Reset()
	assert.Zero(t, rt.WindowLen())

	// A new session starting before the old one is accepted after reset.
	earlier := testutil.Session(testutil.SessionParams{
		Frames: 1,
		Start:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	_, err := rt.ProcessFrame(ctx, earlier[0], nil)
	var insufficient *biomech.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, rt.WindowLen())
}

func TestNewRequiresAllStages(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	var calErr *biomech.CalibrationError
	require.ErrorAs(t, err, &calErr)
}
