package fusion

import (
	"errors"
	"math"
	"testing"

	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/estimate"
	"github.com/rotblauer/velofuse/types/sample"
)

// metersPerDegree is the length of one degree of latitude on the haversine sphere.
const metersPerDegree = 6_371_000.0 * math.Pi / 180

func fixAt(ms uint64, north float64, speed, accuracy *float64) sample.GeoSample {
	return sample.GeoSample{
		Latitude:      45 + north/metersPerDegree,
		Longitude:     -93,
		ReportedSpeed: speed,
		Accuracy:      accuracy,
		TimestampMs:   ms,
	}
}

func still(ms uint64) sample.InertialSample {
	return sample.InertialSample{Accel: sample.Vec3{Z: 9.8 + float64(ms%2)*0.1}, TimestampMs: ms}
}

func pedal(ms uint64) sample.InertialSample {
	return sample.InertialSample{Accel: sample.Vec3{X: 0.5, Y: 3, Z: 2}, TimestampMs: ms}
}

func calibrate(t *testing.T, s *Session) {
	t.Helper()
	for i := 0; i < s.Config.CalibrationSamples; i++ {
		s.HandleMotion(still(uint64(i)))
	}
	if s.IsCalibrating() {
		t.Fatal("Expected calibration to complete")
	}
}

func TestConfidence(t *testing.T) {
	cfg := params.DefaultFusionConfig()
	cases := []struct {
		accuracy   *float64
		calibrated bool
		want       estimate.Confidence
	}{
		{nil, true, estimate.ConfidenceLow},
		{sample.Float(25), true, estimate.ConfidenceLow},
		{sample.Float(20), true, estimate.ConfidenceLow},
		{sample.Float(15), true, estimate.ConfidenceMedium},
		{sample.Float(5), false, estimate.ConfidenceMedium},
		{sample.Float(5), true, estimate.ConfidenceHigh},
		{sample.Float(10), true, estimate.ConfidenceMedium},
	}
	for i, c := range cases {
		if got := Confidence(cfg, c.accuracy, c.calibrated); got != c.want {
			t.Errorf("case %d: expected %v, got %v", i, c.want, got)
		}
	}
}

func TestSession_ConfidenceRisesWithAccuracy(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	calibrate(t, s)

	want := []estimate.Confidence{estimate.ConfidenceLow, estimate.ConfidenceMedium, estimate.ConfidenceHigh}
	for i, acc := range []float64{25, 15, 5} {
		est, err := s.HandleFix(fixAt(uint64(i)*1000, float64(i)*5, sample.Float(5), sample.Float(acc)))
		if err != nil {
			t.Fatal(err)
		}
		if est.Confidence != want[i] {
			t.Errorf("accuracy %v: expected %v, got %v", acc, want[i], est.Confidence)
		}
	}
}

func TestSession_HighConfidenceWaitsForCalibration(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	est, err := s.HandleFix(fixAt(0, 0, sample.Float(5), sample.Float(5)))
	if err != nil {
		t.Fatal(err)
	}
	if est.Confidence != estimate.ConfidenceMedium {
		t.Errorf("Expected medium while calibrating, got %v", est.Confidence)
	}
	if !est.IsMoving {
		t.Error("Expected isMoving while calibrating")
	}
}

func TestSession_RejectsJump(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	if _, err := s.HandleFix(fixAt(0, 0, sample.Float(5), nil)); err != nil {
		t.Fatal(err)
	}
	jump := fixAt(1000, 1000, sample.Float(5), nil)
	if _, err := s.HandleFix(jump); !errors.Is(err, ErrSampleRejected) {
		t.Fatalf("Expected ErrSampleRejected, got %v", err)
	}
	if raw := s.Raw(); raw == nil || raw.TimestampMs != jump.TimestampMs {
		t.Errorf("Expected raw to pass the rejected fix through, got %+v", raw)
	}
	if len(s.History()) != 1 {
		t.Errorf("Expected history to exclude the rejected fix, got %d", len(s.History()))
	}
	if prev := s.Previous(); prev == nil || prev.TimestampMs != 0 {
		t.Errorf("Expected the previous estimate to be untouched, got %+v", prev)
	}
	counts := s.Counts()
	if counts.Accepted != 1 || counts.Rejected != 1 || counts.Published != 1 {
		t.Errorf("Unexpected counts %+v", counts)
	}
}

func TestSession_AcceptsPlausibleStepWithoutSpeed(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	if _, err := s.HandleFix(fixAt(0, 0, nil, nil)); err != nil {
		t.Fatal(err)
	}
	est, err := s.HandleFix(fixAt(1000, 15, nil, nil))
	if err != nil {
		t.Fatalf("Expected a 15m step in 1s to be accepted, got %v", err)
	}
	if est.Speed <= 0 {
		t.Errorf("Expected a derived speed, got %v", est.Speed)
	}
}

func TestSession_SpeedIsNeverNegative(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	// Some platforms report -1 for an unknown speed.
	for i := 0; i < 3; i++ {
		est, err := s.HandleFix(fixAt(uint64(i)*1000, float64(i), sample.Float(-1), sample.Float(5)))
		if err != nil {
			t.Fatal(err)
		}
		if est.Speed < 0 {
			t.Fatalf("fix %d: published negative speed %v", i, est.Speed)
		}
	}
}

func TestSession_Heading(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	first, _ := s.HandleFix(fixAt(0, 0, sample.Float(5), nil))
	if first.HeadingDegrees != nil {
		t.Errorf("Expected no heading on the first fix, got %v", *first.HeadingDegrees)
	}
	second, _ := s.HandleFix(fixAt(1000, 5, sample.Float(5), nil))
	if second.HeadingDegrees == nil {
		t.Fatal("Expected a heading on the second fix")
	}
	if h := *second.HeadingDegrees; h > 0.01 && h < 359.99 {
		t.Errorf("Expected a northward heading, got %v", h)
	}
}

func TestSession_SmoothedSpeedAndAcceleration(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	calibrate(t, s)

	s.HandleFix(fixAt(0, 0, nil, nil))
	est, _ := s.HandleFix(fixAt(1000, 5, nil, nil))
	if math.Abs(est.SmoothedSpeed-5) > 1e-6 {
		t.Fatalf("Expected smoothed speed 5, got %v", est.SmoothedSpeed)
	}
	est, _ = s.HandleFix(fixAt(2000, 15, nil, nil))
	if math.Abs(est.SmoothedSpeed-7.5) > 1e-6 {
		t.Fatalf("Expected smoothed speed 7.5, got %v", est.SmoothedSpeed)
	}
	if math.Abs(est.Acceleration-2.5) > 1e-6 {
		t.Errorf("Expected acceleration 2.5, got %v", est.Acceleration)
	}
}

func TestSession_SmoothedSpeedDoesNotRegress(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	s.HandleFix(fixAt(0, 0, sample.Float(5), nil))
	est, _ := s.HandleFix(fixAt(1000, 5, sample.Float(5), nil))
	before := est.SmoothedSpeed
	if before == 0 {
		t.Fatal("Expected a smoothed speed")
	}
	// The only other fix is outside the window now.
	est, err := s.HandleFix(fixAt(11000, 10, sample.Float(5), nil))
	if err != nil {
		t.Fatal(err)
	}
	if est.SmoothedSpeed != before {
		t.Errorf("Expected smoothed speed to hold at %v, got %v", before, est.SmoothedSpeed)
	}
}

func TestSession_IsMovingAfterCalibration(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	calibrate(t, s)
	est, _ := s.HandleFix(fixAt(0, 0, sample.Float(0.3), nil))
	if est.IsMoving {
		t.Error("Expected 0.3 m/s to be stationary")
	}
	est, _ = s.HandleFix(fixAt(1000, 2, sample.Float(2), nil))
	if !est.IsMoving {
		t.Error("Expected 2 m/s to be moving")
	}
	est, _ = s.HandleFix(fixAt(2000, 2, nil, nil))
	if est.IsMoving {
		t.Error("Expected a fix without reported speed to be stationary")
	}
}

func TestSession_CalibrationBlendsAcceleration(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	s.HandleMotion(sample.InertialSample{Accel: sample.Vec3{X: 3, Y: 4}})
	est, _ := s.HandleFix(fixAt(0, 0, nil, nil))
	if math.Abs(est.Acceleration-2.5) > 1e-9 {
		t.Errorf("Expected half the inertial magnitude, got %v", est.Acceleration)
	}
}

func TestSession_DisableMotion(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	s.DisableMotion()
	if s.IsCalibrating() {
		t.Error("Expected calibration to stop")
	}
	if err := s.RequestRecalibration(); !errors.Is(err, ErrMotionUnavailable) {
		t.Errorf("Expected ErrMotionUnavailable, got %v", err)
	}
	s.HandleMotion(sample.InertialSample{Accel: sample.Vec3{X: 5, Y: 5, Z: 15}})
	if s.Counts().Inertial != 0 {
		t.Error("Expected inertial samples to be ignored")
	}
	est, _ := s.HandleFix(fixAt(0, 0, sample.Float(5), sample.Float(3)))
	if est.Confidence != estimate.ConfidenceMedium {
		t.Errorf("Expected confidence capped at medium, got %v", est.Confidence)
	}
	if est.Pedaling {
		t.Error("Expected no pedaling without motion")
	}
}

func TestSession_Recalibration(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	calibrate(t, s)
	threshold := s.NoiseThreshold()
	if err := s.RequestRecalibration(); err != nil {
		t.Fatal(err)
	}
	if !s.IsCalibrating() {
		t.Fatal("Expected calibration to restart")
	}
	if s.NoiseThreshold() != threshold {
		t.Errorf("Expected threshold %v to hold while recalibrating, got %v", threshold, s.NoiseThreshold())
	}
	calibrate(t, s)
}

func TestSession_InertialSpeed(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	if s.InertialSpeed() != 0 {
		t.Fatal("Expected no inertial speed before calibration")
	}
	calibrate(t, s)
	// The first sample after calibration only starts the clock.
	for i := 0; i < 5; i++ {
		s.HandleMotion(pedal(uint64(1000 + i*100)))
	}
	if s.InertialSpeed() <= 0 {
		t.Fatalf("Expected an inertial speed while pedaling, got %v", s.InertialSpeed())
	}
	if c := s.MotionConfidence(); math.Abs(c-1) > 1e-9 {
		t.Errorf("Expected full confidence for steady pedaling, got %v", c)
	}

	if err := s.RequestRecalibration(); err != nil {
		t.Fatal(err)
	}
	if s.InertialSpeed() != 0 || s.MotionConfidence() != 0 {
		t.Error("Expected recalibration to clear the inertial speed")
	}
	s.DisableMotion()
	if s.InertialSpeed() != 0 {
		t.Error("Expected no inertial speed without motion")
	}
}

func TestSession_Reset(t *testing.T) {
	s := NewSession(params.DefaultFusionConfig())
	calibrate(t, s)
	s.HandleFix(fixAt(0, 0, sample.Float(5), nil))
	s.Reset()
	if len(s.History()) != 0 || s.Raw() != nil || s.Previous() != nil {
		t.Error("Expected empty session state")
	}
	if !s.IsCalibrating() {
		t.Error("Expected calibration to restart")
	}
	if c := s.Counts(); c != (Counts{}) {
		t.Errorf("Expected zeroed counts, got %+v", c)
	}
}

func TestErrorFromCode(t *testing.T) {
	cases := map[string]error{
		"permission_denied":  ErrPositionPermissionDenied,
		"timeout":            ErrPositionTimeout,
		"unavailable":        ErrPositionUnavailable,
		"whatever":           ErrPositionUnavailable,
		"motion_unavailable": ErrMotionUnavailable,
	}
	for code, want := range cases {
		if got := ErrorFromCode(code); !errors.Is(got, want) {
			t.Errorf("%s: expected %v, got %v", code, want, got)
		}
		if back := ErrorFromCode(ErrorCode(want)); back != want {
			t.Errorf("%v: code %q does not map back", want, ErrorCode(want))
		}
	}
	if IsPositionError(ErrMotionUnavailable) {
		t.Error("Expected motion errors to be non-terminal")
	}
}
