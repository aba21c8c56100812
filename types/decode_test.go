package types

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rotblauer/velofuse/types/sample"
)

func TestDecodeRecord_Geo(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"type":"geo","lat":46.87,"lon":-113.99,"speed":5.2,"accuracy":4,"time":1731952467293}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != RecordGeo || r.Geo == nil {
		t.Fatalf("expected geo record, got %+v", r)
	}
	if r.Geo.Latitude != 46.87 || r.Geo.Longitude != -113.99 {
		t.Errorf("bad coordinates: %+v", r.Geo)
	}
	if r.Geo.ReportedSpeed == nil || *r.Geo.ReportedSpeed != 5.2 {
		t.Errorf("bad speed: %v", r.Geo.ReportedSpeed)
	}
	if r.Geo.TimestampMs != 1731952467293 {
		t.Errorf("bad time: %d", r.Geo.TimestampMs)
	}
}

func TestDecodeRecord_GeoWithoutOptionals(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"lat":1,"lon":2,"time":5}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != RecordGeo {
		t.Fatalf("expected sniffed geo record, got %q", r.Kind)
	}
	if r.Geo.ReportedSpeed != nil || r.Geo.Accuracy != nil {
		t.Errorf("optional fields should be nil: %+v", r.Geo)
	}
}

func TestDecodeRecord_Motion(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"type":"motion","accel":{"x":0.1,"y":3.2,"z":1.8},"rotation":{"x":1,"y":2,"z":3},"time":10}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.Kind != RecordMotion || r.Motion == nil {
		t.Fatalf("expected motion record, got %+v", r)
	}
	if r.Motion.Accel.Y != 3.2 || r.Motion.RotationRate.Z != 3 {
		t.Errorf("bad motion: %+v", r.Motion)
	}
}

func TestDecodeRecord_Error(t *testing.T) {
	r, err := DecodeRecord([]byte(`{"type":"error","error":"timeout"}`))
	if err != nil {
		t.Fatal(err)
	}
	if r.ErrorCode != "timeout" {
		t.Errorf("want timeout, got %q", r.ErrorCode)
	}
}

func TestDecodeRecord_Invalid(t *testing.T) {
	for _, line := range []string{
		`not json`,
		`{"type":"geo","lat":1}`,
		`{"type":"bogus"}`,
		`{"type":"error"}`,
		`{}`,
	} {
		if _, err := DecodeRecord([]byte(line)); !errors.Is(err, ErrDecodeRecord) {
			t.Errorf("%s: expected ErrDecodeRecord, got %v", line, err)
		}
	}
}

func TestRecord_MarshalJSONIsDecodable(t *testing.T) {
	in := Record{Kind: RecordGeo, Geo: &sample.GeoSample{Latitude: 1, Longitude: 2, Accuracy: sample.Float(3), TimestampMs: 42}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Kind != RecordGeo || out.TimestampMs != 42 || *out.Geo.Accuracy != 3 {
		t.Errorf("unexpected record from %s: %+v", data, out)
	}

	data, err = json.Marshal(Record{Kind: RecordError, ErrorCode: "timeout", TimestampMs: 7})
	if err != nil {
		t.Fatal(err)
	}
	out, err = DecodeRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.ErrorCode != "timeout" || out.TimestampMs != 7 {
		t.Errorf("unexpected record from %s: %+v", data, out)
	}

	if _, err := json.Marshal(Record{}); err == nil {
		t.Error("expected an error for an untyped record")
	}
}

func TestNewDedupeLRUFunc(t *testing.T) {
	pass := NewDedupeLRUFunc(2)
	fix := func(ms uint64) Record {
		s := sample.GeoSample{Latitude: 46.87, Longitude: -113.99, Accuracy: sample.Float(4), TimestampMs: ms}
		return Record{Kind: RecordGeo, Geo: &s, TimestampMs: ms}
	}

	if !pass(fix(1000)) {
		t.Fatal("Expected the first fix to pass")
	}
	if pass(fix(1000)) {
		t.Error("Expected an identical fix, at another address, to be dropped")
	}
	if !pass(fix(2000)) || !pass(fix(3000)) {
		t.Error("Expected distinct fixes to pass")
	}
	if !pass(fix(1000)) {
		t.Error("Expected an evicted fix to pass again")
	}

	errRecord := Record{Kind: RecordError, ErrorCode: "timeout", TimestampMs: 4000}
	if !pass(errRecord) || !pass(errRecord) {
		t.Error("Expected error records to always pass")
	}
}
