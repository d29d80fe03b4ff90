package kinematics

import "math"

// SeaLevelPressurePa is the ISA reference pressure.
const SeaLevelPressurePa = 101325.0

// PressureAt returns the International Standard Atmosphere static pressure
// for an altitude above mean sea level.
//
// p = p0 * (1 - h/44330)^5.255
func PressureAt(altitudeM float64) float64 {
	return SeaLevelPressurePa * math.Pow(1.0-altitudeM/44330.0, 5.255)
}

// AltitudeAt inverts PressureAt.
func AltitudeAt(pressurePa float64) float64 {
	return 44330.0 * (1.0 - math.Pow(pressurePa/SeaLevelPressurePa, 1.0/5.255))
}
