package fusion

import (
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/testing/testdata"
	"github.com/rotblauer/velofuse/types"
	"github.com/rotblauer/velofuse/types/estimate"
)

func TestSession_SyntheticRide(t *testing.T) {
	defer common.SlogResetLevel(slog.LevelWarn + 1)()

	opts := testdata.DefaultRideOptions()
	opts.JumpAt = 30
	opts.JumpMeters = 250

	cfg := params.DefaultFusionConfig()
	cfg.PositionFilter = true
	s := NewSession(cfg)

	var last estimate.FusedEstimate
	published, rejected := 0, 0
	for _, r := range testdata.Ride(opts) {
		switch r.Kind {
		case types.RecordMotion:
			s.HandleMotion(*r.Motion)
		case types.RecordGeo:
			est, err := s.HandleFix(*r.Geo)
			if errors.Is(err, ErrSampleRejected) {
				rejected++
				continue
			}
			if err != nil {
				t.Fatal(err)
			}
			if published > 0 && est.TimestampMs <= last.TimestampMs {
				t.Fatalf("Estimates out of order: %d after %d", est.TimestampMs, last.TimestampMs)
			}
			last = est
			published++
		}
	}

	if rejected != 1 || published != opts.Fixes-1 {
		t.Errorf("Expected 1 rejected and %d published, got %d and %d", opts.Fixes-1, rejected, published)
	}
	if s.IsCalibrating() || !s.Calibrated() {
		t.Error("Expected the idle burst to complete calibration")
	}
	if last.Confidence != estimate.ConfidenceHigh {
		t.Errorf("Expected high confidence, got %v", last.Confidence)
	}
	if !last.IsMoving || !last.Pedaling {
		t.Errorf("Expected moving and pedaling, got %+v", last)
	}
	if math.Abs(last.Speed-opts.Speed) > 0.1 {
		t.Errorf("Expected speed near %v, got %v", opts.Speed, last.Speed)
	}
	if math.Abs(last.SmoothedSpeed-opts.Speed) > 0.1 {
		t.Errorf("Expected smoothed speed near %v, got %v", opts.Speed, last.SmoothedSpeed)
	}
	if last.HeadingDegrees == nil || math.Abs(*last.HeadingDegrees-opts.Heading) > 1 {
		t.Errorf("Expected heading near %v, got %v", opts.Heading, last.HeadingDegrees)
	}
	if last.Position == nil {
		t.Error("Expected a filtered position")
	}
}
