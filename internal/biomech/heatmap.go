package biomech

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stridewear/kinetics/internal/monitoring"
)

// Interpolation selects the grid interpolation method.
type Interpolation string

const (
	// InterpolationLinear weights samples by inverse distance; when two
	// samples land on the same cell the later timestamp wins.
	InterpolationLinear Interpolation = "linear"

	// InterpolationCubic weights all contributing samples by inverse
	// cubed distance, including same-cell collisions.
	InterpolationCubic Interpolation = "cubic"
)

// influenceRadiusFraction bounds the neighbourhood a sample contributes
// to, as a fraction of the grid edge. Cells outside every sample's radius
// fall back to nearest-neighbour extrapolation, never stay undefined.
const influenceRadiusFraction = 0.25

// GeneratorConfig configures a HeatMapGenerator.
type GeneratorConfig struct {
	// Resolution is the grid edge length. Must be positive.
	Resolution int

	// WorkerCount bounds the tile interpolation pool. Zero means one
	// worker, which tests use for fully deterministic scheduling.
	WorkerCount int

	// Logf is the diagnostic sink. Nil uses monitoring.Logf.
	Logf monitoring.Sink
}

// HeatMapOptions enumerates every recognised rendering option. Invalid
// combinations fail at validation, not mid-interpolation.
type HeatMapOptions struct {
	// Interpolation method; empty defaults to linear.
	Interpolation Interpolation

	// Presentation-only options. They are carried to the renderer and
	// never affect interpolated cell values.
	Smoothing  float64
	Opacity    float64
	ColorScale string
	ShowLabels bool

	// VectorDisplay requests a quiver overlay on force maps.
	VectorDisplay bool

	// ForceScale scales quiver magnitudes for display only. Zero means 1.
	ForceScale float64
}

func (o HeatMapOptions) withDefaults() HeatMapOptions {
	if o.Interpolation == "" {
		o.Interpolation = InterpolationLinear
	}
	if o.ColorScale == "" {
		o.ColorScale = "viridis"
	}
	if o.ForceScale == 0 {
		o.ForceScale = 1
	}
	return o
}

func (o HeatMapOptions) validate() error {
	switch o.Interpolation {
	case "", InterpolationLinear, InterpolationCubic:
	default:
		return &InvalidMeasurementError{Index: -1, Reason: "unknown interpolation method " + string(o.Interpolation)}
	}
	if o.ForceScale < 0 {
		return &InvalidMeasurementError{Index: -1, Value: o.ForceScale, Reason: "ForceScale must be non-negative"}
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return &InvalidMeasurementError{Index: -1, Value: o.Opacity, Reason: "Opacity must be in [0,1]"}
	}
	return nil
}

// UpdateOptions configures a real-time incremental update.
type UpdateOptions struct {
	// TransitionDuration is the blend horizon: the longer it is relative
	// to the frame interval, the more of the previous grid survives.
	// Zero applies the new grid immediately.
	TransitionDuration time.Duration

	// PreserveScale keeps the value scale of the previous grid so the
	// rendered colour mapping does not flicker between updates.
	PreserveScale bool

	// Interpolation for the single-frame grid; empty defaults to linear.
	Interpolation Interpolation
}

// gridSample is one spatial contribution to the interpolated grid.
type gridSample struct {
	x, y  float64 // grid coordinates in [0, resolution-1]
	value float64
	ts    time.Time
}

// HeatMapGenerator interpolates analyzer output onto a square grid.
//
// Generation calls are pure; the only cross-call state is the previous
// grid used by UpdateRealTimeHeatMap for transition smoothing, owned
// exclusively by this instance. Callers needing concurrent independent
// heat-map streams construct one generator per stream.
type HeatMapGenerator struct {
	bio        *BiomechanicsAnalyzer
	perf       *PerformanceAnalyzer
	resolution int
	workers    int
	logf       monitoring.Sink

	mu       sync.Mutex
	prev     *HeatMapGrid
	lastTS   time.Time
	scaleMin float64
	scaleMax float64
	hasScale bool
}

// NewHeatMapGenerator builds a generator over the two analyzer stages.
func NewHeatMapGenerator(bio *BiomechanicsAnalyzer, perf *PerformanceAnalyzer, cfg GeneratorConfig) (*HeatMapGenerator, error) {
	if cfg.Resolution <= 0 {
		return nil, &InvalidMeasurementError{Index: -1, Value: float64(cfg.Resolution), Reason: "resolution must be positive"}
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	logf := cfg.Logf
	if logf == nil {
		logf = monitoring.Logf
	}
	return &HeatMapGenerator{
		bio:        bio,
		perf:       perf,
		resolution: cfg.Resolution,
		workers:    workers,
		logf:       logf,
	}, nil
}

// Reset discards the previous grid and ordering state for this stream.
func (h *HeatMapGenerator) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prev = nil
	h.lastTS = time.Time{}
	h.hasScale = false
}

// GenerateMuscleActivityHeatMap projects per-channel muscle intensity onto
// the grid.
func (h *HeatMapGenerator) GenerateMuscleActivityHeatMap(ctx context.Context, frames []SensorFrame, opts HeatMapOptions) (*HeatMapGrid, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	activity, err := h.bio.AnalyzeMuscleActivity(ctx, frames)
	if err != nil {
		return nil, err
	}
	samples := h.activitySamples(activity, windowEnd(frames))
	grid, err := h.interpolate(ctx, samples, opts)
	if err != nil {
		return nil, err
	}
	return grid, nil
}

// GenerateForceDistributionHeatMap projects smoothed taxel forces onto the
// grid, with an optional quiver overlay built from the force vectors.
func (h *HeatMapGenerator) GenerateForceDistributionHeatMap(ctx context.Context, frames []SensorFrame, opts HeatMapOptions) (*HeatMapGrid, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	load, err := h.bio.CalculateLoadDistribution(ctx, frames)
	if err != nil {
		return nil, err
	}
	samples, mapX, mapY := h.loadSamples(load, windowEnd(frames))
	grid, err := h.interpolate(ctx, samples, opts)
	if err != nil {
		return nil, err
	}

	if opts.VectorDisplay {
		grid.Quiver = make([]QuiverArrow, 0, len(load.ForceVectors))
		for _, fv := range load.ForceVectors {
			grid.Quiver = append(grid.Quiver, QuiverArrow{
				X:         mapX(fv.X),
				Y:         mapY(fv.Y),
				Direction: fv.Direction,
				Magnitude: fv.Magnitude * opts.ForceScale,
			})
		}
	}
	return grid, nil
}

// GenerateAnomalyHeatMap projects per-channel anomaly scores onto the
// grid: each muscle channel's peak activity is scored against the supplied
// baseline, so hot cells mark channels deviating from the athlete's
// history rather than channels that are merely active.
func (h *HeatMapGenerator) GenerateAnomalyHeatMap(ctx context.Context, frames []SensorFrame, baseline []float64, opts HeatMapOptions) (*HeatMapGrid, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	activity, err := h.bio.AnalyzeMuscleActivity(ctx, frames)
	if err != nil {
		return nil, err
	}
	scores, err := h.perf.DetectAnomalies(activity.PeakActivity, baseline)
	if err != nil {
		return nil, err
	}

	ts := windowEnd(frames)
	side := int(math.Ceil(math.Sqrt(float64(len(scores)))))
	samples := make([]gridSample, 0, len(scores))
	for ch, s := range scores {
		samples = append(samples, gridSample{
			x:     latticeToGrid(ch%side, side, h.resolution),
			y:     latticeToGrid(ch/side, side, h.resolution),
			value: s,
			ts:    ts,
		})
	}
	return h.interpolate(ctx, samples, opts)
}

// UpdateRealTimeHeatMap computes a grid from a single incoming frame and
// blends it with the previously emitted grid. Frames must arrive in
// non-decreasing timestamp order; a regression is rejected and the prior
// grid state stays untouched.
func (h *HeatMapGenerator) UpdateRealTimeHeatMap(ctx context.Context, frame SensorFrame, opts UpdateOptions) (*HeatMapGrid, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.lastTS.IsZero() && frame.Timestamp.Before(h.lastTS) {
		return nil, &SequencingError{FrameTimestamp: frame.Timestamp, LastAccepted: h.lastTS}
	}
	if err := checkDeadline(ctx, "UpdateRealTimeHeatMap"); err != nil {
		return nil, err
	}

	samples, err := h.frameSamples(frame)
	if err != nil {
		return nil, err
	}
	hmOpts := HeatMapOptions{Interpolation: opts.Interpolation}.withDefaults()
	grid, err := h.interpolate(ctx, samples, hmOpts)
	if err != nil {
		return nil, err
	}

	if h.prev != nil {
		alpha := 1.0
		if opts.TransitionDuration > 0 {
			dt := frame.Timestamp.Sub(h.lastTS)
			alpha = clamp01(float64(dt) / float64(opts.TransitionDuration))
		}
		for r := range grid.Z {
			prevRow := h.prev.Z[r]
			for c := range grid.Z[r] {
				grid.Z[r][c] = prevRow[c] + alpha*(grid.Z[r][c]-prevRow[c])
			}
		}
	}

	if opts.PreserveScale && h.hasScale {
		for r := range grid.Z {
			for c := range grid.Z[r] {
				grid.Z[r][c] = clampRange(grid.Z[r][c], h.scaleMin, h.scaleMax)
			}
		}
	} else {
		h.scaleMin, h.scaleMax = gridBounds(grid.Z)
		h.hasScale = true
	}

	grid.Transition = &Transition{Duration: opts.TransitionDuration, PreserveScale: opts.PreserveScale}

	// Commit stream state only after the whole update succeeded.
	h.prev = grid
	h.lastTS = frame.Timestamp
	return grid.clone(), nil
}

// activitySamples lays the muscle channels out on a square lattice scaled
// to the grid, valued by each channel's mean intensity.
func (h *HeatMapGenerator) activitySamples(activity MuscleActivityResult, ts time.Time) []gridSample {
	channels := len(activity.Intensity)
	if channels == 0 {
		return nil
	}
	side := int(math.Ceil(math.Sqrt(float64(channels))))
	samples := make([]gridSample, 0, channels)
	for ch := 0; ch < channels; ch++ {
		samples = append(samples, gridSample{
			x:     latticeToGrid(ch%side, side, h.resolution),
			y:     latticeToGrid(ch/side, side, h.resolution),
			value: meanOf(activity.Intensity[ch]),
			ts:    ts,
		})
	}
	return samples
}

// loadSamples maps garment-space taxel forces into grid coordinates. The
// returned mapX/mapY functions translate further garment coordinates
// (e.g. force vector origins) with the same bounding box.
func (h *HeatMapGenerator) loadSamples(load LoadDistributionResult, ts time.Time) ([]gridSample, func(float64) float64, func(float64) float64) {
	taxels := len(load.Distribution)
	side := int(math.Ceil(math.Sqrt(float64(taxels))))
	samples := make([]gridSample, 0, taxels)
	for t := 0; t < taxels; t++ {
		samples = append(samples, gridSample{
			x:     latticeToGrid(t%side, side, h.resolution),
			y:     latticeToGrid(t/side, side, h.resolution),
			value: load.Distribution[t],
			ts:    ts,
		})
	}

	// Garment coordinates share the taxel lattice bounding box, so the
	// quiver overlay uses the same scaling as the samples.
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range load.PressurePoints {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	mapX := garmentScaler(minX, maxX, h.resolution)
	mapY := garmentScaler(minY, maxY, h.resolution)
	return samples, mapX, mapY
}

// frameSamples extracts IMU channel energies from one frame for the
// real-time incremental path, normalized to [0,1].
func (h *HeatMapGenerator) frameSamples(frame SensorFrame) ([]gridSample, error) {
	channels := 0
	energies := []float64(nil)
	maxE := 0.0
	for _, r := range frame.Readings {
		if r.Type != ReadingIMU {
			continue
		}
		if channels == 0 {
			channels = len(r.Values)
			energies = make([]float64, channels)
		}
		if len(r.Values) != channels {
			return nil, &InvalidMeasurementError{Index: -1, Reason: "IMU channel count changed mid-frame"}
		}
		for i, v := range r.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &InvalidMeasurementError{Index: i, Value: v, Reason: "non-finite IMU sample"}
			}
			e := v * v
			if e > energies[i] {
				energies[i] = e
			}
			if e > maxE {
				maxE = e
			}
		}
	}
	if channels == 0 {
		return nil, &InsufficientDataError{FrameCount: 1}
	}
	if maxE == 0 {
		maxE = 1
	}

	side := int(math.Ceil(math.Sqrt(float64(channels))))
	samples := make([]gridSample, 0, channels)
	for ch := 0; ch < channels; ch++ {
		samples = append(samples, gridSample{
			x:     latticeToGrid(ch%side, side, h.resolution),
			y:     latticeToGrid(ch/side, side, h.resolution),
			value: clamp01(energies[ch] / maxE),
			ts:    frame.Timestamp,
		})
	}
	return samples, nil
}

// interpolate computes the full grid from the samples, partitioning rows
// across the worker pool. Workers write disjoint row ranges of a
// pre-allocated grid, so the merged result is deterministic regardless of
// completion order. A deadline hit discards the partial grid entirely.
func (h *HeatMapGenerator) interpolate(ctx context.Context, samples []gridSample, opts HeatMapOptions) (*HeatMapGrid, error) {
	if len(samples) == 0 {
		return nil, &InsufficientDataError{FrameCount: 0}
	}

	res := h.resolution
	z := make([][]float64, res)
	for r := range z {
		z[r] = make([]float64, res)
	}

	// Same-cell collision policy: for linear interpolation the later
	// timestamp wins, so pre-resolve collisions before weighting. Cubic
	// keeps every sample and lets distance weighting arbitrate.
	contributing := samples
	if opts.Interpolation == InterpolationLinear {
		contributing = resolveCellCollisions(samples)
	}

	radius := float64(res) * influenceRadiusFraction
	power := 1.0
	if opts.Interpolation == InterpolationCubic {
		power = 3.0
	}

	rowsPerTile := res / (h.workers * 2)
	if rowsPerTile < 1 {
		rowsPerTile = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for r0 := 0; r0 < res; r0 += rowsPerTile {
		r0, r1 := r0, r0+rowsPerTile
		if r1 > res {
			r1 = res
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for r := r0; r < r1; r++ {
				for c := 0; c < res; c++ {
					z[r][c] = interpolateCell(float64(c), float64(r), contributing, radius, power)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Plain caller cancellation is not a budget overrun; only a
		// deadline hit maps to the typed budget error.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &DeadlineExceededError{Op: "interpolate"}
	}
	if err := checkDeadline(ctx, "interpolate"); err != nil {
		return nil, err
	}

	return &HeatMapGrid{
		Z:          z,
		Type:       "heatmap",
		ColorScale: opts.ColorScale,
	}, nil
}

// interpolateCell computes one cell value by inverse-distance weighting
// over samples within the influence radius, falling back to the nearest
// sample when the cell lies outside every sample's radius.
func interpolateCell(cx, cy float64, samples []gridSample, radius, power float64) float64 {
	num, den := 0.0, 0.0
	nearestDist := math.Inf(1)
	nearestVal := 0.0
	for _, s := range samples {
		dx, dy := s.x-cx, s.y-cy
		d := math.Sqrt(dx*dx + dy*dy)
		if d < nearestDist {
			nearestDist = d
			nearestVal = s.value
		}
		if d < 1e-9 {
			// The sample sits on the cell; it dominates.
			return s.value
		}
		if d <= radius {
			w := 1 / math.Pow(d, power)
			num += w * s.value
			den += w
		}
	}
	if den == 0 {
		// Nearest-neighbour extrapolation outside the sample hull.
		return nearestVal
	}
	return num / den
}

// resolveCellCollisions keeps, for each grid cell, only the sample with
// the latest timestamp. Input order breaks exact-timestamp ties in favour
// of the later sample, matching per-stream arrival order.
func resolveCellCollisions(samples []gridSample) []gridSample {
	byCell := make(map[[2]int]int, len(samples))
	out := make([]gridSample, 0, len(samples))
	for _, s := range samples {
		key := [2]int{int(math.Round(s.x)), int(math.Round(s.y))}
		if i, ok := byCell[key]; ok {
			if !s.ts.Before(out[i].ts) {
				out[i] = s
			}
			continue
		}
		byCell[key] = len(out)
		out = append(out, s)
	}
	return out
}

// latticeToGrid spreads lattice index i of a side-length lattice across
// the grid edge.
func latticeToGrid(i, side, resolution int) float64 {
	if side <= 1 {
		return float64(resolution-1) / 2
	}
	return float64(i) / float64(side-1) * float64(resolution-1)
}

// garmentScaler maps a garment-space coordinate range onto grid
// coordinates.
func garmentScaler(lo, hi float64, resolution int) func(float64) float64 {
	if math.IsInf(lo, 0) || hi == lo {
		return func(float64) float64 { return float64(resolution-1) / 2 }
	}
	return func(v float64) float64 {
		return (v - lo) / (hi - lo) * float64(resolution-1)
	}
}

// gridBounds returns the min and max cell values.
func gridBounds(z [][]float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, row := range z {
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// windowEnd is the timestamp of the last frame in the window.
func windowEnd(frames []SensorFrame) time.Time {
	if len(frames) == 0 {
		return time.Time{}
	}
	return frames[len(frames)-1].Timestamp
}
