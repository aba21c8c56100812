/*
Package motion learns the inertial noise floor of a device and classifies inertial
samples as pedaling or not.

Phone mounting and hardware vary, so a fixed global noise threshold would call
stillness motion on noisier devices. The Calibrator learns one per session from a
burst of samples.
*/
package motion

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/sample"
)

// Calibrator accumulates acceleration magnitudes until it has enough to set a noise threshold.
// It starts calibrating on creation. The threshold from a completed calibration stays in
// effect until a requested recalibration completes.
type Calibrator struct {
	Config params.MotionConfig

	buffer         stats.Float64Data
	noiseThreshold float64
	isCalibrating  bool
	completions    int
}

func NewCalibrator(config params.MotionConfig) *Calibrator {
	c := &Calibrator{
		Config:         config,
		noiseThreshold: config.DefaultNoiseThreshold,
	}
	c.Restart()
	return c
}

// Restart clears the buffer and starts calibrating again.
func (c *Calibrator) Restart() {
	c.buffer = make(stats.Float64Data, 0, c.Config.CalibrationSamples)
	c.isCalibrating = true
}

// Stop abandons calibration without touching the current threshold.
// It is used when there is no motion source to calibrate from.
func (c *Calibrator) Stop() {
	c.buffer = nil
	c.isCalibrating = false
}

func (c *Calibrator) IsCalibrating() bool {
	return c.isCalibrating
}

// Calibrated reports whether a calibration has ever completed.
func (c *Calibrator) Calibrated() bool {
	return c.completions > 0
}

func (c *Calibrator) NoiseThreshold() float64 {
	return c.noiseThreshold
}

// Buffered returns the number of magnitudes collected toward the current calibration.
func (c *Calibrator) Buffered() int {
	return len(c.buffer)
}

// Observe feeds one sample. It returns true exactly when this sample completed a calibration.
func (c *Calibrator) Observe(s sample.InertialSample) (completed bool, err error) {
	if !c.isCalibrating {
		return false, nil
	}
	c.buffer = append(c.buffer, s.Accel.Magnitude())
	if len(c.buffer) < c.Config.CalibrationSamples {
		return false, nil
	}

	// Population standard deviation about the mean.
	stddev, err := stats.StandardDeviationPopulation(c.buffer)
	if err != nil {
		c.buffer = c.buffer[:0]
		return false, fmt.Errorf("calibration stddev: %w", err)
	}
	c.noiseThreshold = stddev * c.Config.NoiseMultiplier
	c.isCalibrating = false
	c.completions++
	c.buffer = nil
	return true, nil
}

// IsMoving reports whether a sample's acceleration stands above the learned noise floor.
func (c *Calibrator) IsMoving(s sample.InertialSample) bool {
	return s.Accel.Magnitude() > c.Config.InertialMovementThreshold+c.noiseThreshold
}
