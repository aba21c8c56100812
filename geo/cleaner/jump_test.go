package cleaner

import (
	"context"
	"testing"

	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/sample"
)

func historyOf(fixes ...sample.GeoSample) *common.RingBuffer[sample.GeoSample] {
	h := common.NewRingBuffer[sample.GeoSample](100)
	for _, f := range fixes {
		h.Add(f)
	}
	return h
}

func TestJumpValidator_EmptyHistory(t *testing.T) {
	v := NewJumpValidator(params.DefaultJumpConfig())
	far := sample.GeoSample{Latitude: 45, Longitude: 45, TimestampMs: 1000}
	if got := v.Validate(historyOf(), far); got != Accepted {
		t.Errorf("first fix must be accepted, got %s", got)
	}
	if got := v.Validate(nil, far); got != Accepted {
		t.Errorf("nil history must accept, got %s", got)
	}
}

func TestJumpValidator_Teleport(t *testing.T) {
	v := NewJumpValidator(params.DefaultJumpConfig())
	h := historyOf(sample.GeoSample{Latitude: 0, Longitude: 0, TimestampMs: 10_000})

	far := sample.GeoSample{Latitude: 1, Longitude: 1, TimestampMs: 11_000}
	if got := v.Validate(h, far); got != RejectedAsJump {
		t.Errorf("~157km in 1s must be rejected, got %s", got)
	}
	near := sample.GeoSample{Latitude: 0.0001, Longitude: 0.0001, TimestampMs: 11_000}
	if got := v.Validate(h, near); got != Accepted {
		t.Errorf("~15m in 1s must be accepted, got %s", got)
	}
}

func TestJumpValidator_TooCloseInTime(t *testing.T) {
	v := NewJumpValidator(params.DefaultJumpConfig())
	h := historyOf(sample.GeoSample{Latitude: 0, Longitude: 0, TimestampMs: 10_000})
	far := sample.GeoSample{Latitude: 1, Longitude: 1, TimestampMs: 10_050}
	if got := v.Validate(h, far); got != Accepted {
		t.Errorf("fixes under 100ms apart are not judged, got %s", got)
	}
	past := sample.GeoSample{Latitude: 1, Longitude: 1, TimestampMs: 9_000}
	if got := v.Validate(h, past); got != Accepted {
		t.Errorf("out-of-order fixes are not judged, got %s", got)
	}
}

func TestJumpValidator_SpeedBound(t *testing.T) {
	v := NewJumpValidator(params.DefaultJumpConfig())
	// Standing still: 0 * 1.5 + 5 = 5 m/s.
	h := historyOf(sample.GeoSample{Latitude: 0, Longitude: 0, ReportedSpeed: sample.Float(0), TimestampMs: 0})
	// ~11m north after 1s is over 5 m/s.
	if got := v.Validate(h, sample.GeoSample{Latitude: 0.0001, TimestampMs: 1000}); got != RejectedAsJump {
		t.Errorf("11m/s from standstill must be rejected, got %s", got)
	}
	// The same displacement over 3s is plausible.
	if got := v.Validate(h, sample.GeoSample{Latitude: 0.0001, TimestampMs: 3000}); got != Accepted {
		t.Errorf("3.7m/s from standstill must be accepted, got %s", got)
	}
}

func TestJumpValidator_AbsoluteThreshold(t *testing.T) {
	v := NewJumpValidator(params.DefaultJumpConfig())
	// Fast enough for the speed bound, but 22m exceeds the absolute threshold.
	h := historyOf(sample.GeoSample{Latitude: 0, Longitude: 0, ReportedSpeed: sample.Float(20), TimestampMs: 0})
	if got := v.Validate(h, sample.GeoSample{Latitude: 0.0002, TimestampMs: 1000}); got != RejectedAsJump {
		t.Errorf("22m jump must be rejected, got %s", got)
	}
}

func TestJumpFilter(t *testing.T) {
	ctx := context.Background()
	in := make(chan sample.GeoSample)
	go func() {
		defer close(in)
		in <- sample.GeoSample{Latitude: 0, Longitude: 0, TimestampMs: 0}
		in <- sample.GeoSample{Latitude: 0.00005, Longitude: 0, TimestampMs: 1000}
		in <- sample.GeoSample{Latitude: 1, Longitude: 1, TimestampMs: 2000}
		in <- sample.GeoSample{Latitude: 0.0001, Longitude: 0, TimestampMs: 3000}
	}()
	rejected := 0
	var got []sample.GeoSample
	for fix := range JumpFilter(ctx, params.DefaultJumpConfig(), 10, in, func(sample.GeoSample) { rejected++ }) {
		got = append(got, fix)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 fixes through, got %d", len(got))
	}
	if rejected != 1 {
		t.Errorf("want 1 rejection, got %d", rejected)
	}
	if got[2].TimestampMs != 3000 {
		t.Errorf("jump should have been judged against the last passed fix, got %+v", got[2])
	}
}
