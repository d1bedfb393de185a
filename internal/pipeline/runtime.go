package pipeline

import (
	"context"
	"time"

	"github.com/stridewear/kinetics/internal/biomech"
	"github.com/stridewear/kinetics/internal/monitoring"
	"github.com/stridewear/kinetics/internal/timeutil"
)

// DefaultBudget is the end-to-end latency budget per processing cycle.
const DefaultBudget = 100 * time.Millisecond

// Config wires the three analyzer stages into a per-stream runtime.
type Config struct {
	Analyzer    *biomech.BiomechanicsAnalyzer
	Performance *biomech.PerformanceAnalyzer
	HeatMap     *biomech.HeatMapGenerator

	// Budget is the per-cycle deadline. Zero uses DefaultBudget.
	Budget time.Duration

	// HeatMapOptions are applied to every generated grid.
	HeatMapOptions biomech.HeatMapOptions

	// Clock drives latency accounting. Nil uses the real clock.
	Clock timeutil.Clock

	// Logf is the diagnostic sink. Nil uses monitoring.Logf.
	Logf monitoring.Sink
}

// CycleResult is the output of one successful processing cycle.
type CycleResult struct {
	Report         biomech.AnomalyReport
	Grid           *biomech.HeatMapGrid
	Elapsed        time.Duration
	FramesInWindow int
}

// Runtime runs the Biomechanics → Performance → Heat-Map pipeline for a
// single sensor stream, maintaining the stream's analysis window and
// enforcing the cycle budget. One Runtime per stream; a Runtime must not
// be shared across concurrent callers.
type Runtime struct {
	perf    *biomech.PerformanceAnalyzer
	heatmap *biomech.HeatMapGenerator
	window  *biomech.AnalysisWindow
	budget  time.Duration
	opts    biomech.HeatMapOptions
	clock   timeutil.Clock
	logf    monitoring.Sink

	cycles int64
}

// New builds a Runtime from fully constructed stages.
func New(cfg Config) (*Runtime, error) {
	if cfg.Analyzer == nil || cfg.Performance == nil || cfg.HeatMap == nil {
		return nil, &biomech.CalibrationError{Field: "pipeline", Reason: "all three stages are required"}
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logf := cfg.Logf
	if logf == nil {
		logf = monitoring.Logf
	}
	return &Runtime{
		perf:    cfg.Performance,
		heatmap: cfg.HeatMap,
		window:  biomech.NewAnalysisWindow(cfg.Analyzer.SamplingWindow()),
		budget:  budget,
		opts:    cfg.HeatMapOptions,
		clock:   clock,
		logf:    logf,
	}, nil
}

// ProcessFrame pushes one frame into the stream window and runs a full
// cycle over the windowed frames against the supplied baseline.
//
// Failures short-circuit: when any stage fails, downstream stages are
// never invoked and the typed error propagates unchanged. While the
// window is still warming up the error is *biomech.InsufficientDataError;
// callers normally keep feeding frames.
func (rt *Runtime) ProcessFrame(ctx context.Context, frame biomech.SensorFrame, baseline []float64) (*CycleResult, error) {
	if err := rt.window.Push(frame); err != nil {
		return nil, err
	}

	start := rt.clock.Now()
	ctx, cancel := context.WithTimeout(ctx, rt.budget)
	defer cancel()

	report, err := rt.perf.AnalyzeSensorData(ctx, rt.window.Frames(), baseline)
	if err != nil {
		return nil, err
	}
	grid, err := rt.heatmap.GenerateMuscleActivityHeatMap(ctx, rt.window.Frames(), rt.opts)
	if err != nil {
		return nil, err
	}

	elapsed := rt.clock.Since(start)
	rt.cycles++
	if elapsed > rt.budget {
		// The ctx deadline already failed genuinely slow stages; this
		// logs cycles that finished but left no headroom.
		rt.logf("pipeline: cycle %d finished at %v, over the %v budget", rt.cycles, elapsed, rt.budget)
	}

	return &CycleResult{
		Report:         report,
		Grid:           grid,
		Elapsed:        elapsed,
		FramesInWindow: rt.window.Len(),
	}, nil
}

// WindowLen reports how many frames the stream window currently holds.
func (rt *Runtime) WindowLen() int { return rt.window.Len() }

// Reset clears the stream window, the heat-map transition state and cycle
// counters, ready for a new session on the same stream.
func (rt *Runtime) Reset() {
	rt.window.Reset()
	rt.heatmap.Reset()
	rt.cycles = 0
}
