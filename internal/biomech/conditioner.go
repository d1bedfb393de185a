package biomech

import (
	"math"
)

// signalConditioner applies drift correction, gain and low-pass filtering
// to raw channel samples before analysis. A conditioner is allocated per
// analyzer invocation and never shared, so concurrent calls on one
// analyzer cannot observe each other's filter state.
type signalConditioner struct {
	drift    float64
	gain     float64
	cutoffHz float64

	// state holds the previous filter output per channel.
	state  []float64
	primed []bool
}

func newSignalConditioner(drift, gain, cutoffHz float64, channels int) *signalConditioner {
	return &signalConditioner{
		drift:    drift,
		gain:     gain,
		cutoffHz: cutoffHz,
		state:    make([]float64, channels),
		primed:   make([]bool, channels),
	}
}

// condition corrects and filters one sample for a channel. dt is the time
// since the previous sample on the channel; the single-pole coefficient is
// recomputed per sample because IMU and ToF cadences differ.
func (c *signalConditioner) condition(channel int, raw, dt float64) float64 {
	v := (raw - c.drift) * c.gain

	if channel < 0 || channel >= len(c.state) {
		return v
	}
	if !c.primed[channel] || dt <= 0 {
		c.state[channel] = v
		c.primed[channel] = true
		return v
	}

	// Single-pole low-pass: alpha = dt / (rc + dt), rc = 1/(2*pi*fc).
	rc := 1.0 / (2 * math.Pi * c.cutoffHz)
	alpha := dt / (rc + dt)
	c.state[channel] += alpha * (v - c.state[channel])
	return c.state[channel]
}
