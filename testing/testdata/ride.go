// Package testdata generates deterministic sessions for tests.
package testdata

import (
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/types"
	"github.com/rotblauer/velofuse/types/sample"
)

// RideOptions shape a synthetic ride. The generator is deterministic.
type RideOptions struct {
	Start     time.Time
	Latitude  float64
	Longitude float64

	// Fixes is the number of GPS fixes, one per Interval.
	Fixes    int
	Interval time.Duration

	// Speed is the constant ground speed, m/s, along Heading (degrees).
	Speed   float64
	Heading float64

	// Accuracy is the reported horizontal accuracy of every fix. Zero omits it.
	Accuracy float64
	// OmitSpeed leaves the reported speed off every fix.
	OmitSpeed bool

	// IdleSamples are at-rest inertial samples ahead of the first fix, for calibration.
	IdleSamples int
	// MotionPerFix is the number of pedaling inertial samples between fixes.
	MotionPerFix int

	// JumpAt, when positive, displaces that fix by JumpMeters perpendicular to the heading.
	JumpAt     int
	JumpMeters float64
}

func DefaultRideOptions() RideOptions {
	return RideOptions{
		Start:        time.Date(2024, 11, 18, 16, 30, 0, 0, time.UTC),
		Latitude:     46.8721,
		Longitude:    -113.9940,
		Fixes:        60,
		Interval:     time.Second,
		Speed:        6,
		Heading:      90,
		Accuracy:     5,
		IdleSamples:  50,
		MotionPerFix: 10,
	}
}

// Ride generates the records of a synthetic ride in time order.
func Ride(opts RideOptions) []types.Record {
	records := []types.Record{}
	t := uint64(opts.Start.UnixMilli())

	for i := 0; i < opts.IdleSamples; i++ {
		// Gravity plus a little sensor noise.
		s := sample.InertialSample{
			Accel:       sample.Vec3{X: 0.02 * float64(i%3-1), Z: 9.81 + 0.03*float64(i%2)},
			TimestampMs: t,
		}
		records = append(records, types.Record{Kind: types.RecordMotion, Motion: &s, TimestampMs: t})
		t += 20
	}

	intervalMs := uint64(opts.Interval.Milliseconds())
	step := opts.Speed * opts.Interval.Seconds()
	lat, lon := opts.Latitude, opts.Longitude
	for i := 0; i < opts.Fixes; i++ {
		if i > 0 {
			lat, lon = common.Destination(lat, lon, opts.Heading, step)
		}
		fix := sample.GeoSample{Latitude: lat, Longitude: lon, TimestampMs: t}
		if opts.JumpAt > 0 && i == opts.JumpAt {
			fix.Latitude, fix.Longitude = common.Destination(lat, lon, opts.Heading+90, opts.JumpMeters)
		}
		if !opts.OmitSpeed {
			fix.ReportedSpeed = sample.Float(opts.Speed)
		}
		if opts.Accuracy > 0 {
			fix.Accuracy = sample.Float(opts.Accuracy)
		}
		records = append(records, types.Record{Kind: types.RecordGeo, Geo: &fix, TimestampMs: t})

		if opts.MotionPerFix > 0 && i < opts.Fixes-1 {
			gap := intervalMs / uint64(opts.MotionPerFix+1)
			for j := 1; j <= opts.MotionPerFix; j++ {
				ts := t + uint64(j)*gap
				phase := 2 * math.Pi * float64(j) / float64(opts.MotionPerFix)
				s := sample.InertialSample{
					// Pedal stroke: vertical oscillation, forward push, little sway.
					Accel:        sample.Vec3{X: 0.5 * math.Sin(phase), Y: 3 + math.Sin(phase), Z: 2},
					RotationRate: sample.Vec3{Z: 5 * math.Cos(phase)},
					TimestampMs:  ts,
				}
				records = append(records, types.Record{Kind: types.RecordMotion, Motion: &s, TimestampMs: ts})
			}
		}
		t += intervalMs
	}
	return records
}

// WriteRecords writes records as ndjson.
func WriteRecords(w io.Writer, records []types.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Fixes returns only the fixes of records, in order.
func Fixes(records []types.Record) []sample.GeoSample {
	out := []sample.GeoSample{}
	for _, r := range records {
		if r.Kind == types.RecordGeo {
			out = append(out, *r.Geo)
		}
	}
	return out
}
