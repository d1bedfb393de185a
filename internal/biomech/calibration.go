package biomech

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Force and angle bounds enforced on every load-distribution output.
const (
	// MaxForceNewtons is the ceiling for any reported force magnitude.
	MaxForceNewtons = 2000.0

	// minMatrixDeterminant is the smallest |det| accepted for the
	// calibration matrix before it is treated as non-invertible.
	minMatrixDeterminant = 1e-9
)

// CalibrationParams holds per-athlete/sensor calibration. Supplied by an
// external calibration service, validated once at analyzer construction,
// and never mutated by the core. Updating calibration means constructing
// a new analyzer.
type CalibrationParams struct {
	// ToFGain converts raw ToF channel values to newtons.
	ToFGain float64

	// IMUDriftCorrection is subtracted from every IMU channel sample
	// before gain and filtering.
	IMUDriftCorrection float64

	// PressureThreshold is the smoothed force (newtons) above which a
	// taxel becomes a pressure point.
	PressureThreshold float64

	// SampleWindow bounds every analysis window. Frames older than
	// SampleWindow relative to the newest frame are evicted.
	SampleWindow time.Duration

	// FilterCutoffHz is the low-pass cutoff applied to conditioned IMU
	// channels before energy computation.
	FilterCutoffHz float64

	// CalibrationMatrix is the 3x3 axis-correction matrix mapping taxel
	// lattice coordinates to garment space. Must be invertible.
	CalibrationMatrix *mat.Dense

	// TemperatureCompensation scales ToF values per degree of deviation
	// from the calibration temperature. Zero disables compensation.
	TemperatureCompensation float64
}

// Validate checks calibration scalars and matrix invertibility. It returns
// a *CalibrationError describing the first violation found.
func (p *CalibrationParams) Validate() error {
	if p.ToFGain <= 0 || math.IsNaN(p.ToFGain) || math.IsInf(p.ToFGain, 0) {
		return &CalibrationError{Field: "ToFGain", Value: p.ToFGain, Reason: "must be a positive finite value"}
	}
	if math.IsNaN(p.IMUDriftCorrection) || math.IsInf(p.IMUDriftCorrection, 0) {
		return &CalibrationError{Field: "IMUDriftCorrection", Value: p.IMUDriftCorrection, Reason: "must be finite"}
	}
	if p.PressureThreshold < 0 || p.PressureThreshold > MaxForceNewtons {
		return &CalibrationError{Field: "PressureThreshold", Value: p.PressureThreshold, Reason: "must be in [0,2000] newtons"}
	}
	if p.SampleWindow <= 0 {
		return &CalibrationError{Field: "SampleWindow", Value: p.SampleWindow.Seconds(), Reason: "must be positive"}
	}
	if p.FilterCutoffHz <= 0 {
		return &CalibrationError{Field: "FilterCutoffHz", Value: p.FilterCutoffHz, Reason: "must be positive"}
	}
	if p.CalibrationMatrix == nil {
		return &CalibrationError{Field: "CalibrationMatrix", Reason: "missing"}
	}
	if r, c := p.CalibrationMatrix.Dims(); r != 3 || c != 3 {
		return &CalibrationError{Field: "CalibrationMatrix", Value: float64(r*10 + c), Reason: "must be 3x3"}
	}
	det := mat.Det(p.CalibrationMatrix)
	if math.IsNaN(det) || math.Abs(det) < minMatrixDeterminant {
		return &CalibrationError{Field: "CalibrationMatrix", Value: det, Reason: "matrix is not invertible"}
	}
	return nil
}

// axisCorrect maps homogeneous lattice coordinates (col,row,1) through the
// calibration matrix into garment space. The matrix is validated as
// invertible at construction, so this never fails at call time.
func (p *CalibrationParams) axisCorrect(col, row float64) (x, y float64) {
	in := mat.NewVecDense(3, []float64{col, row, 1})
	var out mat.VecDense
	out.MulVec(p.CalibrationMatrix, in)
	w := out.AtVec(2)
	if w == 0 {
		w = 1
	}
	return out.AtVec(0) / w, out.AtVec(1) / w
}

// IdentityCalibration returns a usable default calibration for tests and
// replay tooling: unity gains, identity axis correction, a 250ms window.
func IdentityCalibration() CalibrationParams {
	return CalibrationParams{
		ToFGain:            1.0,
		IMUDriftCorrection: 0.0,
		PressureThreshold:  50.0,
		SampleWindow:       250 * time.Millisecond,
		FilterCutoffHz:     20.0,
		CalibrationMatrix: mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		}),
	}
}
