package biomech

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Shared fixtures for the biomech package tests. The synthetic session
// here is intentionally tiny; internal/testutil carries the full-size
// generator used by pipeline tests and cmd/replay, but importing it from
// this package would be an import cycle.

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func imuFrame(ts time.Time, values ...float64) SensorFrame {
	return SensorFrame{
		SensorID:    "garment-01",
		Timestamp:   ts,
		SessionID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte("biomech-test")),
		DataQuality: 95,
		Readings: []SensorReading{{
			Type:       ReadingIMU,
			Values:     values,
			Timestamp:  ts,
			Confidence: 0.95,
		}},
	}
}

func tofFrame(ts time.Time, values ...float64) SensorFrame {
	return SensorFrame{
		SensorID:    "garment-01",
		Timestamp:   ts,
		SessionID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte("biomech-test")),
		DataQuality: 95,
		Readings: []SensorReading{{
			Type:       ReadingToF,
			Values:     values,
			Timestamp:  ts,
			Confidence: 0.9,
		}},
	}
}

// sineSession builds n alternating IMU/ToF frames spaced 10ms apart:
// 4 IMU channels driven by phase-shifted sinusoids and 16 ToF taxels
// with a centre pressure blob. Deterministic, no RNG.
func sineSession(n int) []SensorFrame {
	frames := make([]SensorFrame, 0, n)
	for i := 0; i < n; i++ {
		ts := testEpoch.Add(time.Duration(i) * 10 * time.Millisecond)
		phase := float64(i) * 0.4
		if i%2 == 0 {
			frames = append(frames, imuFrame(ts,
				math.Sin(phase), math.Sin(phase+0.3),
				math.Sin(phase+0.05), math.Sin(phase+0.35),
			))
			continue
		}
		taxels := make([]float64, 16)
		for t := range taxels {
			dx := float64(t%4) - 1.5
			dy := float64(t/4) - 1.5
			taxels[t] = 300 * math.Exp(-(dx*dx+dy*dy)/2) * (0.8 + 0.2*math.Sin(phase))
		}
		frames = append(frames, tofFrame(ts, taxels...))
	}
	return frames
}

func testAnalyzer(t interface{ Fatalf(string, ...interface{}) }) *BiomechanicsAnalyzer {
	a, err := NewBiomechanicsAnalyzer(AnalyzerConfig{
		Calibration: IdentityCalibration(),
		Logf:        func(string, ...interface{}) {},
	})
	if err != nil {
		t.Fatalf("NewBiomechanicsAnalyzer: %v", err)
	}
	return a
}
