package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rotblauer/velofuse/types/sample"
	"github.com/tidwall/gjson"
)

// RecordKind tags one line of a recorded session.
type RecordKind string

const (
	RecordGeo    RecordKind = "geo"
	RecordMotion RecordKind = "motion"
	RecordError  RecordKind = "error"
)

var ErrDecodeRecord = errors.New("could not decode session record")

// Record is one line of a recorded session, as read by replay and clean.
// Exactly one of Geo, Motion, or ErrorCode is set, according to Kind.
type Record struct {
	Kind        RecordKind
	Geo         *sample.GeoSample
	Motion      *sample.InertialSample
	ErrorCode   string
	TimestampMs uint64
}

// MarshalJSON writes the same flat, typed line DecodeRecord reads.
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RecordGeo:
		return json.Marshal(struct {
			Type RecordKind `json:"type"`
			*sample.GeoSample
		}{r.Kind, r.Geo})
	case RecordMotion:
		return json.Marshal(struct {
			Type RecordKind `json:"type"`
			*sample.InertialSample
		}{r.Kind, r.Motion})
	case RecordError:
		return json.Marshal(struct {
			Type  RecordKind `json:"type"`
			Error string     `json:"error"`
			Time  uint64     `json:"time"`
		}{r.Kind, r.ErrorCode, r.TimestampMs})
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrDecodeRecord, r.Kind)
}

// DecodeRecord decodes one ndjson session line, eg.
//
//	{"type":"geo","lat":46.87,"lon":-113.99,"speed":5.2,"accuracy":4,"time":1731952467293}
//	{"type":"motion","accel":{"x":0.1,"y":3.2,"z":1.8},"rotation":{"x":0,"y":0,"z":0},"time":1731952467300}
//	{"type":"error","error":"permission_denied","time":1731952467400}
//
// Lines without a type are sniffed: a lat field means geo, an accel field means motion.
func DecodeRecord(data []byte) (Record, error) {
	if !gjson.ValidBytes(data) {
		return Record{}, fmt.Errorf("%w: invalid json", ErrDecodeRecord)
	}
	kind := RecordKind(gjson.GetBytes(data, "type").String())
	if kind == "" {
		switch {
		case gjson.GetBytes(data, "lat").Exists():
			kind = RecordGeo
		case gjson.GetBytes(data, "accel").Exists():
			kind = RecordMotion
		}
	}

	switch kind {
	case RecordGeo:
		if !gjson.GetBytes(data, "lat").Exists() || !gjson.GetBytes(data, "lon").Exists() {
			return Record{}, fmt.Errorf("%w: geo record missing lat/lon", ErrDecodeRecord)
		}
		g := &sample.GeoSample{}
		if err := json.Unmarshal(data, g); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrDecodeRecord, err)
		}
		return Record{Kind: kind, Geo: g, TimestampMs: g.TimestampMs}, nil
	case RecordMotion:
		m := &sample.InertialSample{}
		if err := json.Unmarshal(data, m); err != nil {
			return Record{}, fmt.Errorf("%w: %v", ErrDecodeRecord, err)
		}
		return Record{Kind: kind, Motion: m, TimestampMs: m.TimestampMs}, nil
	case RecordError:
		code := gjson.GetBytes(data, "error").String()
		if code == "" {
			return Record{}, fmt.Errorf("%w: error record missing code", ErrDecodeRecord)
		}
		return Record{Kind: kind, ErrorCode: code, TimestampMs: gjson.GetBytes(data, "time").Uint()}, nil
	}
	return Record{}, fmt.Errorf("%w: unknown type %q", ErrDecodeRecord, kind)
}
