// Package units provides shared constants and validation for display units
package units

// Unit constants
const (
	MM = "mm"
	CM = "cm"
	IN = "in"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MM, CM, IN}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mm, cm, in"
}

// ConvertLength converts a length from millimeters to the target units.
// Calibration, scene geometry and the database all carry millimeters.
func ConvertLength(lengthMM float64, targetUnits string) float64 {
	switch targetUnits {
	case CM:
		return lengthMM / 10.0
	case IN:
		return lengthMM / 25.4 // mm to inches
	case MM:
		return lengthMM // no conversion needed
	default:
		return lengthMM // default to mm if unknown unit
	}
}
