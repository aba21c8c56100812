package common

// All units are in metric:
// - Speed is in m/s
// - Distance is in meters
// - Time is in seconds
// - Acceleration is in m/s^2

// MetersPerSecondToKPH converts m/s to km/h for display.
func MetersPerSecondToKPH(mps float64) float64 {
	return mps * 3.6
}
