// Package units provides shared constants and conversions for angle and
// range units.
package units

import "math"

// Angle unit constants
const (
	Radians = "rad"
	Degrees = "deg"
)

// Range unit constants
const (
	Metres      = "m"
	Millimetres = "mm"
)

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{Radians, Degrees}

// IsValidAngleUnit checks if the given unit is in the list of valid angle units
func IsValidAngleUnit(unit string) bool {
	for _, validUnit := range ValidAngleUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidAngleUnitsString returns a comma-separated string of valid units for error messages
func GetValidAngleUnitsString() string {
	return "rad, deg"
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// ConvertAngle converts an angle in radians to the target units.
// Scans are stored and published in radians.
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Degrees:
		return RadToDeg(rad)
	default:
		return rad // default to radians if unknown unit
	}
}

// MillimetresToMetres converts a raw millimetre reading to metres.
func MillimetresToMetres(mm uint16) float64 {
	return float64(mm) / 1000.0
}
