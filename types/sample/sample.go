// Package sample holds the raw sensor readings delivered by the platform.
// Samples are values; once created they are never mutated.
package sample

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/rotblauer/velofuse/common"
)

// GeoSample is one position fix.
// ReportedSpeed (m/s) and Accuracy (m) are optional; a nil pointer means the
// provider did not report them.
type GeoSample struct {
	Latitude      float64  `json:"lat"`
	Longitude     float64  `json:"lon"`
	ReportedSpeed *float64 `json:"speed,omitempty"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	TimestampMs   uint64   `json:"time"`
}

func (g GeoSample) Point() orb.Point {
	return common.Point(g.Latitude, g.Longitude)
}

func (g GeoSample) Time() time.Time {
	return time.UnixMilli(int64(g.TimestampMs))
}

// SpeedOr returns the reported speed, or fallback when none was reported.
func (g GeoSample) SpeedOr(fallback float64) float64 {
	if g.ReportedSpeed == nil {
		return fallback
	}
	return *g.ReportedSpeed
}

// SecondsSince returns the signed interval in seconds from prev to g.
func (g GeoSample) SecondsSince(prev GeoSample) float64 {
	return float64(int64(g.TimestampMs)-int64(prev.TimestampMs)) / 1000
}

// DistanceTo returns the great-circle distance to other, in meters.
func (g GeoSample) DistanceTo(other GeoSample) float64 {
	return common.Haversine(g.Latitude, g.Longitude, other.Latitude, other.Longitude)
}

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 {
	return &v
}
