package sample

import (
	"time"

	"github.com/rotblauer/velofuse/common"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Magnitude() float64 {
	return common.Magnitude(v.X, v.Y, v.Z)
}

// InertialSample is one motion reading.
// Accel is gravity-inclusive, m/s^2. RotationRate is deg/s.
type InertialSample struct {
	Accel        Vec3   `json:"accel"`
	RotationRate Vec3   `json:"rotation"`
	TimestampMs  uint64 `json:"time"`
}

func (s InertialSample) Time() time.Time {
	return time.UnixMilli(int64(s.TimestampMs))
}
