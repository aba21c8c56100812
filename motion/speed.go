package motion

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/sample"
)

// SpeedEstimator integrates acceleration above the noise floor into a rough speed.
// Only samples the classifier calls pedaling contribute; the estimate is the mean of
// the most recent contributions. It is a coarse fallback, not a replacement for GPS.
type SpeedEstimator struct {
	Config params.MotionConfig

	buffer   *common.RingBuffer[float64]
	last     *uint64
	pedaling bool
}

func NewSpeedEstimator(config params.MotionConfig) *SpeedEstimator {
	return &SpeedEstimator{
		Config: config,
		buffer: common.NewRingBuffer[float64](config.SpeedBufferSize),
	}
}

// Observe feeds one classified sample. noiseThreshold is the calibrated noise floor.
func (e *SpeedEstimator) Observe(s sample.InertialSample, noiseThreshold float64, pedaling bool) {
	e.pedaling = pedaling
	ts := s.TimestampMs
	defer func() { e.last = &ts }()
	if e.last == nil {
		return
	}
	dt := float64(int64(ts)-int64(*e.last)) / 1000
	if dt <= 0 {
		return
	}
	a := math.Max(0, s.Accel.Magnitude()-noiseThreshold)
	if a > e.Config.InertialMovementThreshold && pedaling {
		// v = a*t
		e.buffer.Add(a * dt)
	}
}

// Speed returns the mean buffered speed in m/s, or 0 before any contribution.
func (e *SpeedEstimator) Speed() float64 {
	mean, err := stats.Mean(e.buffer.Get())
	if err != nil {
		return 0
	}
	return mean
}

// Confidence scores the estimate in [0, 1]. Steady speeds score higher, and the
// latest pedaling verdict dominates. Fewer than 3 buffered speeds score 0.
func (e *SpeedEstimator) Confidence() float64 {
	speeds := e.buffer.Get()
	if len(speeds) < 3 {
		return 0
	}
	variance, err := stats.PopulationVariance(speeds)
	if err != nil {
		return 0
	}
	steadiness := math.Max(0, 1-variance/e.Config.ConfidenceVarianceScale)
	if e.pedaling {
		return 0.7 + 0.3*steadiness
	}
	return 0.3 * steadiness
}

func (e *SpeedEstimator) Reset() {
	e.buffer.Reset()
	e.last = nil
	e.pedaling = false
}
