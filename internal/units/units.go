// Package units provides shared constants and validation for display units.
// Analytics results are computed and stored in SI (m/s, newtons); display
// surfaces convert at the edge.
package units

// Velocity unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Force unit constants
const (
	Newtons = "n"
	PoundsF = "lbf"
	KgF     = "kgf"
)

// ValidVelocityUnits contains all valid velocity unit values
var ValidVelocityUnits = []string{MPS, MPH, KMPH, KPH}

// ValidForceUnits contains all valid force unit values
var ValidForceUnits = []string{Newtons, PoundsF, KgF}

// IsValidVelocity checks if the given unit is a recognised velocity unit
func IsValidVelocity(unit string) bool {
	for _, v := range ValidVelocityUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// IsValidForce checks if the given unit is a recognised force unit
func IsValidForce(unit string) bool {
	for _, v := range ValidForceUnits {
		if unit == v {
			return true
		}
	}
	return false
}

// ConvertVelocity converts a velocity from meters per second to the target
// units. Unknown units pass the value through unchanged.
func ConvertVelocity(mps float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return mps
	case MPH:
		return mps * 2.2369362920544
	case KMPH, KPH:
		return mps * 3.6
	default:
		return mps
	}
}

// ConvertForce converts a force from newtons to the target units. Unknown
// units pass the value through unchanged.
func ConvertForce(newtons float64, targetUnits string) float64 {
	switch targetUnits {
	case Newtons:
		return newtons
	case PoundsF:
		return newtons * 0.22480894309971
	case KgF:
		return newtons / 9.80665
	default:
		return newtons
	}
}
