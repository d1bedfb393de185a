// Package testutil provides shared fixtures for the analytics core:
// deterministic synthetic sensor sessions used by package tests and by
// cmd/replay.
//
// Generators are seeded so the same parameters always produce the same
// frames, which keeps golden comparisons and latency benchmarks stable.
package testutil

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/stridewear/kinetics/internal/biomech"
)

// SessionParams describes a synthetic capture session.
type SessionParams struct {
	// Frames is the total frame count; IMU and ToF frames interleave.
	Frames int

	// Interval is the spacing between consecutive frames.
	Interval time.Duration

	// IMUChannels and ToFTaxels size the channel vectors. Defaults: 8, 16.
	IMUChannels int
	ToFTaxels   int

	// Activity shapes the waveform: base sinusoid amplitude. Default 1.0.
	Activity float64

	// Seed drives the noise generator. The zero seed is a valid seed.
	Seed int64

	// Start is the first frame timestamp; zero uses a fixed epoch so
	// sessions are reproducible end to end.
	Start time.Time
}

func (p SessionParams) withDefaults() SessionParams {
	if p.Frames == 0 {
		p.Frames = 100
	}
	if p.Interval == 0 {
		p.Interval = 10 * time.Millisecond
	}
	if p.IMUChannels == 0 {
		p.IMUChannels = 8
	}
	if p.ToFTaxels == 0 {
		p.ToFTaxels = 16
	}
	if p.Activity == 0 {
		p.Activity = 1.0
	}
	if p.Start.IsZero() {
		p.Start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}
	return p
}

// Session generates an interleaved IMU/ToF frame sequence in timestamp
// order: even frames carry an IMU reading, odd frames a ToF reading.
func Session(p SessionParams) []biomech.SensorFrame {
	p = p.withDefaults()
	rng := rand.New(rand.NewSource(p.Seed))
	sessionID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("kinetics-synthetic-session"))

	frames := make([]biomech.SensorFrame, 0, p.Frames)
	for i := 0; i < p.Frames; i++ {
		ts := p.Start.Add(time.Duration(i) * p.Interval)
		frame := biomech.SensorFrame{
			SensorID:    "garment-01",
			Timestamp:   ts,
			SessionID:   sessionID,
			DataQuality: 90 + 10*rng.Float64(),
			Metadata: biomech.FrameMetadata{
				CalibrationVersion:   "v2",
				Quality:              95,
				EnvironmentalFactors: map[string]float64{"temperature_c": 21.5},
			},
		}
		phase := float64(i) * p.Interval.Seconds() * 2 * math.Pi

		if i%2 == 0 {
			frame.Readings = []biomech.SensorReading{IMUReading(ts, p.IMUChannels, p.Activity, phase, rng)}
		} else {
			frame.Readings = []biomech.SensorReading{ToFReading(ts, p.ToFTaxels, p.Activity, phase, rng)}
		}
		frames = append(frames, frame)
	}
	return frames
}

// IMUReading builds one multi-channel inertial reading: a per-channel
// phase-shifted sinusoid plus noise, which gives paired channels realistic
// near-symmetric energy.
func IMUReading(ts time.Time, channels int, amplitude, phase float64, rng *rand.Rand) biomech.SensorReading {
	values := make([]float64, channels)
	for ch := range values {
		shift := float64(ch%max(channels/2, 1)) * 0.3
		values[ch] = amplitude*math.Sin(phase+shift) + 0.05*rng.NormFloat64()
	}
	return biomech.SensorReading{
		Type:       biomech.ReadingIMU,
		Values:     values,
		Timestamp:  ts,
		Confidence: 0.95,
	}
}

// ToFReading builds one taxel vector with a pressure blob centred on the
// lattice, scaled so several taxels exceed typical pressure thresholds.
func ToFReading(ts time.Time, taxels int, amplitude, phase float64, rng *rand.Rand) biomech.SensorReading {
	side := int(math.Ceil(math.Sqrt(float64(taxels))))
	centre := float64(side-1) / 2
	values := make([]float64, taxels)
	for t := range values {
		dx := float64(t%side) - centre
		dy := float64(t/side) - centre
		dist := math.Sqrt(dx*dx + dy*dy)
		blob := 400 * amplitude * math.Exp(-dist*dist/2) * (0.75 + 0.25*math.Sin(phase))
		values[t] = blob + math.Abs(2*rng.NormFloat64())
	}
	return biomech.SensorReading{
		Type:       biomech.ReadingToF,
		Values:     values,
		Timestamp:  ts,
		Confidence: 0.9,
	}
}

// FlatBaseline returns n copies of value, the canonical "nothing ever
// changes" athlete history.
func FlatBaseline(n int, value float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}
