package common

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadiusMeters is the mean earth radius used for all great-circle math in this module.
// orb uses the WGS84 equatorial radius; distances are rescaled to this one.
const EarthRadiusMeters = 6_371_000.0

// Point returns the orb point (lon, lat) for a latitude and longitude in degrees.
func Point(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(Point(lat1, lon1), Point(lat2, lon2)) * (EarthRadiusMeters / orb.EarthRadius)
}

// Bearing returns the initial great-circle bearing from the first point to the second,
// in degrees normalized to [0, 360).
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	return NormalizeDegrees(geo.Bearing(Point(lat1, lon1), Point(lat2, lon2)))
}

// NormalizeDegrees wraps any angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// -0 and float error at the wrap point.
	if deg >= 360 || deg == 0 {
		return 0
	}
	return deg
}

// Destination returns the point meters away from (lat, lon) along bearing (degrees).
// It is the inverse of Haversine and Bearing on the same sphere.
func Destination(lat, lon, bearing, meters float64) (float64, float64) {
	p := geo.PointAtBearingAndDistance(Point(lat, lon), bearing, meters*(orb.EarthRadius/EarthRadiusMeters))
	return p.Lat(), p.Lon()
}
