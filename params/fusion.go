package params

import "time"

type KalmanConfig struct {
	ProcessNoise         float64
	MeasurementNoiseBase float64
	InitialEstimateError float64

	// PositionFilter enables the lat/lng Kalman filter alongside the scalar speed filter.
	PositionFilter bool
}

func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{
		ProcessNoise:         0.01,
		MeasurementNoiseBase: 0.5,
		InitialEstimateError: 1,
	}
}

type MotionConfig struct {
	// CalibrationSamples is the number of idle inertial samples used to learn the noise floor.
	CalibrationSamples int

	// NoiseMultiplier scales the population standard deviation into the noise threshold.
	NoiseMultiplier float64

	// DefaultNoiseThreshold is in effect until the first calibration completes.
	DefaultNoiseThreshold float64

	// InertialMovementThreshold is the acceleration above the noise floor, m/s^2,
	// that counts as inertial movement.
	InertialMovementThreshold float64

	// SpeedBufferSize is the number of integrated inertial speeds averaged into the
	// inertial speed estimate.
	SpeedBufferSize int

	// ConfidenceVarianceScale is the speed variance, (m/s)^2, at which the variance
	// part of the motion confidence reaches zero. 10 (km/h)^2 in m/s.
	ConfidenceVarianceScale float64
}

func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		CalibrationSamples:        50,
		NoiseMultiplier:           1.5,
		DefaultNoiseThreshold:     1.0,
		InertialMovementThreshold: 0.8,
		SpeedBufferSize:           10,
		ConfidenceVarianceScale:   10 / (3.6 * 3.6),
	}
}

type FusionConfig struct {
	JumpConfig
	KalmanConfig
	MotionConfig

	// HistorySize bounds the accepted fix history.
	HistorySize int

	// SmoothingWindow is the trailing window for the distance/time speed.
	SmoothingWindow time.Duration

	// MovementThreshold is the reported speed, m/s, above which the cyclist is moving.
	MovementThreshold float64

	// HighConfidenceAccuracy and MediumConfidenceAccuracy are horizontal accuracy cutoffs in meters.
	HighConfidenceAccuracy   float64
	MediumConfidenceAccuracy float64

	// CalibrationAccelerationBlend weights the inertial magnitude against the GPS-derived
	// acceleration while calibrating. 0.5 is a plain average.
	// It is a tunable, not a physical law.
	CalibrationAccelerationBlend float64
}

func DefaultFusionConfig() *FusionConfig {
	return &FusionConfig{
		JumpConfig:                   DefaultJumpConfig(),
		KalmanConfig:                 DefaultKalmanConfig(),
		MotionConfig:                 DefaultMotionConfig(),
		HistorySize:                  100,
		SmoothingWindow:              5 * time.Second,
		MovementThreshold:            0.5,
		HighConfidenceAccuracy:       10,
		MediumConfidenceAccuracy:     20,
		CalibrationAccelerationBlend: 0.5,
	}
}
