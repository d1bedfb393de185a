// Package monitor renders offline PNG snapshots of analytics output for
// parameter tuning: heat-map grids and per-channel intensity traces.
// It is tooling-only and never sits on the real-time path.
package monitor

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/stridewear/kinetics/internal/biomech"
)

// gridXYZ adapts a HeatMapGrid to the plotter.GridXYZ interface.
type gridXYZ struct {
	grid *biomech.HeatMapGrid
}

func (g gridXYZ) Dims() (c, r int) {
	r = g.grid.Resolution()
	if r == 0 {
		return 0, 0
	}
	return len(g.grid.Z[0]), r
}

func (g gridXYZ) Z(c, r int) float64 { return g.grid.Z[r][c] }
func (g gridXYZ) X(c int) float64    { return float64(c) }
func (g gridXYZ) Y(r int) float64    { return float64(r) }

// SaveGridPNG renders the grid as a heat-map PNG at path, creating parent
// directories as needed.
func SaveGridPNG(grid *biomech.HeatMapGrid, title, path string) error {
	if grid == nil || grid.Resolution() == 0 {
		return fmt.Errorf("save grid png: empty grid")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save grid png: %w", err)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "grid x"
	p.Y.Label.Text = "grid y"

	hm := plotter.NewHeatMap(gridXYZ{grid: grid}, palette.Heat(12, 1))
	p.Add(hm)

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save grid png: %w", err)
	}
	return nil
}

// SaveIntensityPNG renders per-channel intensity traces from a muscle
// activity result as a line plot PNG at path.
func SaveIntensityPNG(activity biomech.MuscleActivityResult, title, path string) error {
	if len(activity.Intensity) == 0 {
		return fmt.Errorf("save intensity png: no channels")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("save intensity png: %w", err)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "intensity"
	p.Y.Min, p.Y.Max = 0, 1

	for ch, series := range activity.Intensity {
		pts := make(plotter.XYs, len(series))
		for i, v := range series {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("save intensity png: %w", err)
		}
		line.Color = plotutil.Color(ch)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("ch%d", ch), line)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save intensity png: %w", err)
	}
	return nil
}
