package fusion

import (
	"log/slog"
	"math"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/geo/cleaner"
	"github.com/rotblauer/velofuse/geo/kalman"
	"github.com/rotblauer/velofuse/geo/smoother"
	"github.com/rotblauer/velofuse/motion"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/estimate"
	"github.com/rotblauer/velofuse/types/sample"
)

// Counts are the running totals for a session.
type Counts struct {
	Accepted  int64 `json:"accepted"`
	Rejected  int64 `json:"rejected"`
	Inertial  int64 `json:"inertial"`
	Published int64 `json:"published"`
}

// Session is the synchronous fusion core. It is not safe for concurrent use;
// the Engine serializes all calls onto one goroutine, and replays call it directly.
type Session struct {
	Config *params.FusionConfig
	logger *slog.Logger

	history     *common.RingBuffer[sample.GeoSample]
	validator   *cleaner.JumpValidator
	speed       kalman.SpeedFilter
	position    *kalman.PositionFilter
	smoother    *smoother.Windowed
	calibration *motion.Calibrator
	classifier  motion.Classifier
	integrator  *motion.SpeedEstimator

	motionAvailable bool
	lastInertial    *sample.InertialSample
	pedaling        bool
	inertialMoving  bool

	raw      *sample.GeoSample
	previous *estimate.FusedEstimate

	registry  metrics.Registry
	accepted  metrics.Counter
	rejected  metrics.Counter
	inertial  metrics.Counter
	published metrics.Counter
}

func NewSession(config *params.FusionConfig) *Session {
	if config == nil {
		config = params.DefaultFusionConfig()
	}
	s := &Session{
		Config:          config,
		logger:          slog.With("d", "fusion"),
		history:         common.NewRingBuffer[sample.GeoSample](config.HistorySize),
		validator:       cleaner.NewJumpValidator(config.JumpConfig),
		speed:           kalman.NewScalar(config.KalmanConfig),
		smoother:        smoother.NewWindowed(config.SmoothingWindow),
		calibration:     motion.NewCalibrator(config.MotionConfig),
		classifier:      motion.Heuristic,
		integrator:      motion.NewSpeedEstimator(config.MotionConfig),
		motionAvailable: true,
		registry:        metrics.NewRegistry(),
	}
	if config.PositionFilter {
		s.position = kalman.NewPositionFilter()
	}
	s.accepted = metrics.NewRegisteredCounter("fusion/fixes/accepted", s.registry)
	s.rejected = metrics.NewRegisteredCounter("fusion/fixes/rejected", s.registry)
	s.inertial = metrics.NewRegisteredCounter("fusion/inertial/samples", s.registry)
	s.published = metrics.NewRegisteredCounter("fusion/estimates/published", s.registry)
	return s
}

// WithClassifier swaps the pedaling classifier.
func (s *Session) WithClassifier(c motion.Classifier) *Session {
	if c != nil {
		s.classifier = c
	}
	return s
}

// HandleFix runs one fix through the pipeline.
// Rejected fixes return ErrSampleRejected and only update the raw passthrough.
func (s *Session) HandleFix(fix sample.GeoSample) (estimate.FusedEstimate, error) {
	raw := fix
	s.raw = &raw

	if s.validator.Validate(s.history, fix) == cleaner.RejectedAsJump {
		s.rejected.Inc(1)
		last := s.history.Last()
		s.logger.Debug("Rejected fix as jump",
			"distance", common.DecimalToFixed(last.DistanceTo(fix), 1),
			"dt", fix.SecondsSince(last),
			"max_speed", s.validator.MaxPlausibleSpeed(last))
		return estimate.FusedEstimate{}, ErrSampleRejected
	}
	s.history.Add(fix)
	s.accepted.Inc(1)

	est := s.fuse(fix)
	s.previous = &est
	s.published.Inc(1)
	return est, nil
}

func (s *Session) fuse(fix sample.GeoSample) estimate.FusedEstimate {
	var prev *sample.GeoSample
	if recent := s.history.Tail(2); len(recent) == 2 {
		prev = &recent[0]
	}

	var heading *float64
	if prev != nil {
		h := common.Bearing(prev.Latitude, prev.Longitude, fix.Latitude, fix.Longitude)
		heading = &h
	}

	calibrating := s.calibration.IsCalibrating()
	est := estimate.FusedEstimate{
		Speed:          math.Max(0, s.filterSpeed(fix, prev)),
		SmoothedSpeed:  s.smoother.Update(s.history.Get()),
		Latitude:       fix.Latitude,
		Longitude:      fix.Longitude,
		HeadingDegrees: heading,
		Confidence:     s.confidence(fix.Accuracy),
		IsMoving:       calibrating || fix.SpeedOr(0) > s.Config.MovementThreshold,
		TimestampMs:    fix.TimestampMs,
		Pedaling:       s.motionAvailable && !calibrating && s.pedaling,
	}
	est.Acceleration = s.acceleration(fix, est.SmoothedSpeed)

	if s.position != nil {
		p, err := s.position.Observe(fix, heading)
		if err != nil {
			s.logger.Warn("Position filter failed", "error", err)
		} else {
			est.Position = &p
		}
	}
	return est
}

// filterSpeed prefers the reported speed. Without one it derives a speed from the
// previous accepted fix; with neither, the filter is left alone.
func (s *Session) filterSpeed(fix sample.GeoSample, prev *sample.GeoSample) float64 {
	if fix.ReportedSpeed != nil {
		return s.speed.Update(*fix.ReportedSpeed, fix.Accuracy)
	}
	if prev != nil {
		if dt := fix.SecondsSince(*prev); dt > 0 {
			return s.speed.Update(prev.DistanceTo(fix)/dt, fix.Accuracy)
		}
	}
	return s.speed.State().Estimate
}

func (s *Session) acceleration(fix sample.GeoSample, smoothed float64) float64 {
	gps := 0.0
	if s.previous != nil {
		dt := float64(int64(fix.TimestampMs)-int64(s.previous.TimestampMs)) / 1000
		if dt > 0 {
			gps = (smoothed - s.previous.SmoothedSpeed) / dt
		}
	}
	if s.motionAvailable && s.calibration.IsCalibrating() && s.lastInertial != nil {
		w := s.Config.CalibrationAccelerationBlend
		return w*s.lastInertial.Accel.Magnitude() + (1-w)*gps
	}
	return gps
}

func (s *Session) confidence(accuracy *float64) estimate.Confidence {
	return Confidence(s.Config, accuracy, s.motionAvailable && s.calibration.Calibrated() && !s.calibration.IsCalibrating())
}

// Confidence grades a fix by its horizontal accuracy.
// High additionally requires a completed calibration; a missing accuracy is Low.
func Confidence(config *params.FusionConfig, accuracy *float64, calibrated bool) estimate.Confidence {
	if accuracy == nil {
		return estimate.ConfidenceLow
	}
	switch {
	case *accuracy < config.HighConfidenceAccuracy && calibrated:
		return estimate.ConfidenceHigh
	case *accuracy < config.MediumConfidenceAccuracy:
		return estimate.ConfidenceMedium
	}
	return estimate.ConfidenceLow
}

// HandleMotion feeds one inertial sample. While calibrating, samples only feed the
// calibration buffer; afterwards they drive the pedaling classifier.
func (s *Session) HandleMotion(m sample.InertialSample) {
	if !s.motionAvailable {
		return
	}
	s.inertial.Inc(1)
	latest := m
	s.lastInertial = &latest

	if s.calibration.IsCalibrating() {
		done, err := s.calibration.Observe(m)
		if err != nil {
			s.logger.Error("Calibration failed", "error", err)
			return
		}
		if done {
			s.logger.Info("Calibration complete", "noise_threshold", common.DecimalToFixed(s.calibration.NoiseThreshold(), 3))
		}
		return
	}
	s.pedaling = s.classifier.IsPedaling(m)
	s.inertialMoving = s.calibration.IsMoving(m)
	s.integrator.Observe(m, s.calibration.NoiseThreshold(), s.pedaling)
}

// RequestRecalibration discards the calibration buffer and starts over.
// The previous threshold stays in effect until the new calibration completes.
func (s *Session) RequestRecalibration() error {
	if !s.motionAvailable {
		return ErrMotionUnavailable
	}
	s.calibration.Restart()
	s.integrator.Reset()
	s.pedaling = false
	s.inertialMoving = false
	s.logger.Info("Recalibrating")
	return nil
}

// DisableMotion drops to GPS-only operation: calibration stops, pedaling is never
// reported, and confidence cannot reach High.
func (s *Session) DisableMotion() {
	if !s.motionAvailable {
		return
	}
	s.motionAvailable = false
	s.calibration.Stop()
	s.lastInertial = nil
	s.integrator.Reset()
	s.pedaling = false
	s.inertialMoving = false
	s.logger.Warn("Motion unavailable, continuing on GPS alone")
}

// Reset clears all per-session state: history, filters, smoother, calibration and counters.
func (s *Session) Reset() {
	s.history.Reset()
	s.speed.Reset()
	if s.position != nil {
		s.position = kalman.NewPositionFilter()
	}
	s.smoother.Reset()
	s.calibration = motion.NewCalibrator(s.Config.MotionConfig)
	s.integrator.Reset()
	s.motionAvailable = true
	s.lastInertial = nil
	s.pedaling = false
	s.inertialMoving = false
	s.raw = nil
	s.previous = nil
	s.accepted.Clear()
	s.rejected.Clear()
	s.inertial.Clear()
	s.published.Clear()
}

func (s *Session) MotionAvailable() bool {
	return s.motionAvailable
}

func (s *Session) IsCalibrating() bool {
	return s.calibration.IsCalibrating()
}

// Calibrated reports whether any calibration has completed this session.
func (s *Session) Calibrated() bool {
	return s.calibration.Calibrated()
}

func (s *Session) NoiseThreshold() float64 {
	return s.calibration.NoiseThreshold()
}

// InertialSpeed is the speed integrated from pedaling acceleration, in m/s.
// It is reported alongside the GPS speed and never feeds it.
func (s *Session) InertialSpeed() float64 {
	if !s.motionAvailable {
		return 0
	}
	return s.integrator.Speed()
}

// MotionConfidence scores the inertial speed in [0, 1].
func (s *Session) MotionConfidence() float64 {
	if !s.motionAvailable {
		return 0
	}
	return s.integrator.Confidence()
}

// InertialMoving reports whether the last classified inertial sample exceeded the noise floor.
func (s *Session) InertialMoving() bool {
	return s.motionAvailable && !s.calibration.IsCalibrating() && s.inertialMoving
}

// Raw returns the most recent fix as received, accepted or not.
func (s *Session) Raw() *sample.GeoSample {
	if s.raw == nil {
		return nil
	}
	raw := *s.raw
	return &raw
}

// Previous returns the most recently published estimate.
func (s *Session) Previous() *estimate.FusedEstimate {
	if s.previous == nil {
		return nil
	}
	prev := *s.previous
	return &prev
}

// History returns the accepted fixes, oldest first.
func (s *Session) History() []sample.GeoSample {
	return s.history.Get()
}

func (s *Session) Counts() Counts {
	return Counts{
		Accepted:  s.accepted.Snapshot().Count(),
		Rejected:  s.rejected.Snapshot().Count(),
		Inertial:  s.inertial.Snapshot().Count(),
		Published: s.published.Snapshot().Count(),
	}
}

// Registry exposes the session counters.
func (s *Session) Registry() metrics.Registry {
	return s.registry
}
