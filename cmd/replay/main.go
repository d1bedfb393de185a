// Command replay runs the full analytics pipeline over a synthetic
// sensor session and reports per-cycle latency against the 100ms budget.
//
// It renders an interactive HTML heat-map dashboard (go-echarts) and,
// optionally, PNG snapshots and a SQLite baseline recording.
//
// Usage:
//
//	go run ./cmd/replay [flags]
//
// Flags:
//
//	-frames      Number of synthetic frames (default: 100)
//	-interval    Frame spacing (default: 10ms)
//	-config      Tuning config JSON; empty uses built-in defaults
//	-out         Output directory (default: ./replay-out)
//	-png         Also write PNG snapshots (default: false)
//	-db          SQLite baseline db path; empty disables recording
//	-athlete     Athlete ID used for baseline recording
//	-force-units Force display units: n, lbf or kgf (default: n)
//
// Resolution, worker count, thresholds and the cycle budget come from the
// tuning config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/stridewear/kinetics/internal/baselinedb"
	"github.com/stridewear/kinetics/internal/biomech"
	"github.com/stridewear/kinetics/internal/config"
	"github.com/stridewear/kinetics/internal/monitor"
	"github.com/stridewear/kinetics/internal/pipeline"
	"github.com/stridewear/kinetics/internal/testutil"
	"github.com/stridewear/kinetics/internal/units"
	"github.com/stridewear/kinetics/internal/version"
)

func main() {
	frames := flag.Int("frames", 100, "Number of synthetic frames")
	interval := flag.Duration("interval", 10*time.Millisecond, "Frame spacing")
	configPath := flag.String("config", "", "Tuning config JSON; empty uses built-in defaults")
	outDir := flag.String("out", "replay-out", "Output directory")
	png := flag.Bool("png", false, "Also write PNG snapshots")
	dbPath := flag.String("db", "", "SQLite baseline db path; empty disables recording")
	athleteID := flag.String("athlete", "athlete-demo", "Athlete ID for baseline recording")
	forceUnits := flag.String("force-units", units.Newtons, "Force display units (n, lbf, kgf)")
	flag.Parse()

	if !units.IsValidForce(*forceUnits) {
		log.Fatalf("replay failed: unknown force units %q", *forceUnits)
	}

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("replay failed: %v", err)
		}
	}

	if err := run(*frames, *interval, tuning, *outDir, *png, *dbPath, *athleteID, *forceUnits); err != nil {
		log.Fatalf("replay failed: %v", err)
	}
}

func run(frameCount int, interval time.Duration, tuning *config.TuningConfig, outDir string, png bool, dbPath, athleteID, forceUnits string) error {
	log.Printf("kinetics replay %s", version.String())

	cal := biomech.IdentityCalibration()
	cal.ToFGain = tuning.GetToFGain()
	cal.IMUDriftCorrection = tuning.GetIMUDriftCorrection()
	cal.PressureThreshold = tuning.GetPressureThreshold()
	cal.FilterCutoffHz = tuning.GetFilterCutoffHz()
	cal.SampleWindow = tuning.GetSampleWindow()
	cal.TemperatureCompensation = tuning.GetTemperatureCompensation()

	analyzer, err := biomech.NewBiomechanicsAnalyzer(biomech.AnalyzerConfig{
		Calibration:       cal,
		MinWindowFraction: tuning.GetMinWindowFraction(),
	})
	if err != nil {
		return err
	}
	perf, err := biomech.NewPerformanceAnalyzer(analyzer, biomech.PerformanceConfig{
		AnomalyThreshold: tuning.GetAnomalyThreshold(),
	})
	if err != nil {
		return err
	}
	resolution := tuning.GetHeatMapResolution()
	workers := tuning.GetHeatMapWorkers()
	heatmap, err := biomech.NewHeatMapGenerator(analyzer, perf, biomech.GeneratorConfig{
		Resolution:  resolution,
		WorkerCount: workers,
	})
	if err != nil {
		return err
	}
	rt, err := pipeline.New(pipeline.Config{
		Analyzer:    analyzer,
		Performance: perf,
		HeatMap:     heatmap,
		Budget:      tuning.GetCycleBudget(),
	})
	if err != nil {
		return err
	}

	session := testutil.Session(testutil.SessionParams{
		Frames:   frameCount,
		Interval: interval,
	})
	baseline := testutil.FlatBaseline(100, 0.5)

	var store *baselinedb.Store
	if dbPath != "" {
		store, err = baselinedb.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	log.Printf("replaying %d frames at %v intervals (resolution %d, %d workers)",
		frameCount, interval, resolution, workers)

	ctx := context.Background()
	var lastResult *pipeline.CycleResult
	var worst time.Duration
	cycles, dropped := 0, 0
	var peaks []float64

	for _, frame := range session {
		result, err := rt.ProcessFrame(ctx, frame, baseline)
		if err != nil {
			var insufficient *biomech.InsufficientDataError
			if errors.As(err, &insufficient) {
				continue // window still warming up
			}
			var deadline *biomech.DeadlineExceededError
			if errors.As(err, &deadline) {
				dropped++
				continue // drop the frame, proceed with the next one
			}
			return err
		}
		cycles++
		lastResult = result
		if result.Elapsed > worst {
			worst = result.Elapsed
		}
		peaks = append(peaks, result.Report.MuscleActivity)
	}

	if lastResult == nil {
		return fmt.Errorf("no cycle completed; session too short for the analysis window")
	}

	log.Printf("completed %d cycles, %d dropped, worst cycle %v (budget %v)",
		cycles, dropped, worst, tuning.GetCycleBudget())
	log.Printf("final report: activity=%.2f force=%.2f rom=%.2f confidence=%.2f",
		lastResult.Report.MuscleActivity, lastResult.Report.ForceDistribution,
		lastResult.Report.RangeOfMotion, lastResult.Report.Confidence)
	meanForce := lastResult.Report.ForceDistribution * biomech.MaxForceNewtons
	log.Printf("mean load: %.1f %s", units.ConvertForce(meanForce, forceUnits), forceUnits)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	htmlPath := filepath.Join(outDir, "heatmap.html")
	if err := renderHTML(lastResult.Grid, htmlPath); err != nil {
		return err
	}
	log.Printf("wrote %s", htmlPath)

	if png {
		pngPath := filepath.Join(outDir, "heatmap.png")
		if err := monitor.SaveGridPNG(lastResult.Grid, "muscle activity", pngPath); err != nil {
			return err
		}
		log.Printf("wrote %s", pngPath)
	}

	if store != nil {
		sessionID := session[0].SessionID
		if err := store.AppendMeasurements(athleteID, "muscle_activity", peaks, sessionID); err != nil {
			return err
		}
		if err := store.RecordSession(baselinedb.SessionRecord{
			SessionID:  sessionID,
			AthleteID:  athleteID,
			StartedAt:  session[0].Timestamp,
			FrameCount: frameCount,
		}); err != nil {
			return err
		}
		log.Printf("recorded %d baseline measurements for %s", len(peaks), athleteID)
	}
	return nil
}

// renderHTML writes the grid as an interactive echarts heat map.
func renderHTML(grid *biomech.HeatMapGrid, path string) error {
	res := grid.Resolution()
	data := make([]opts.HeatMapData, 0, res*res)
	maxV := 0.0
	for y, row := range grid.Z {
		for x, v := range row {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{x, y, v}})
			if v > maxV {
				maxV = v
			}
		}
	}
	if maxV == 0 {
		maxV = 1
	}

	xs := make([]string, res)
	for i := range xs {
		xs[i] = fmt.Sprintf("%d", i)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Kinetics Heat Map", Theme: "dark", Width: "900px", Height: "900px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Muscle Activity",
			Subtitle: fmt.Sprintf("resolution=%d colorScale=%s", res, grid.ColorScale),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxV),
			InRange: &opts.VisualMapInRange{
				Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"},
			},
		}),
	)
	hm.SetXAxis(xs).AddSeries("activity", data)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return hm.Render(f)
}
