/*
Package kalman smooths noisy GPS readings.

Scalar is a 1-D filter over speed. It is intentionally not a position/velocity
state-space filter; PositionFilter wraps regnull/kalman for callers that want a
filtered location as well.
*/
package kalman

import (
	"github.com/rotblauer/velofuse/params"
)

// State is the scalar filter state. ErrorVariance is always > 0.
type State struct {
	Estimate      float64 `json:"estimate"`
	ErrorVariance float64 `json:"errorVariance"`
}

// InitialState is the state a filter is reset to at session start.
func InitialState(cfg params.KalmanConfig) State {
	return State{Estimate: 0, ErrorVariance: cfg.InitialEstimateError}
}

// MeasurementNoise scales the base measurement noise by the fix's horizontal accuracy.
// A missing (or non-positive) accuracy is treated as twice the base noise.
func MeasurementNoise(cfg params.KalmanConfig, accuracy *float64) float64 {
	if accuracy == nil || *accuracy <= 0 {
		return cfg.MeasurementNoiseBase * 2
	}
	return cfg.MeasurementNoiseBase * (*accuracy / 10)
}

// Update runs one predict/update step and returns the new state and its estimate.
// The estimate is not clamped; callers that need a physical speed clamp to >= 0.
func Update(cfg params.KalmanConfig, state State, measurement float64, accuracy *float64) (State, float64) {
	r := MeasurementNoise(cfg, accuracy)

	// Predict.
	p := state.ErrorVariance + cfg.ProcessNoise

	// Update.
	gain := p / (p + r)
	next := State{
		Estimate:      state.Estimate + gain*(measurement-state.Estimate),
		ErrorVariance: (1 - gain) * p,
	}
	return next, next.Estimate
}

// SpeedFilter is what the fusion session needs from a speed filter.
// Scalar is the default; anything richer can stand in behind the same contract.
type SpeedFilter interface {
	Update(measurement float64, accuracy *float64) float64
	Reset()
	State() State
}

// Scalar is a stateful SpeedFilter around Update.
type Scalar struct {
	cfg   params.KalmanConfig
	state State
}

func NewScalar(cfg params.KalmanConfig) *Scalar {
	return &Scalar{cfg: cfg, state: InitialState(cfg)}
}

func (s *Scalar) Update(measurement float64, accuracy *float64) float64 {
	var est float64
	s.state, est = Update(s.cfg, s.state, measurement, accuracy)
	return est
}

func (s *Scalar) Reset() {
	s.state = InitialState(s.cfg)
}

func (s *Scalar) State() State {
	return s.state
}
