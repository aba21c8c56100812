// Package estimate defines the fused output published to consumers.
package estimate

import (
	"encoding/json"
	"fmt"
	"time"
)

type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

var confidenceNames = map[Confidence]string{
	ConfidenceLow:    "low",
	ConfidenceMedium: "medium",
	ConfidenceHigh:   "high",
}

func (c Confidence) String() string {
	if s, ok := confidenceNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for k, v := range confidenceNames {
		if v == s {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown confidence %q", s)
}

// Position is a filtered latitude/longitude pair.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// FusedEstimate is recomputed from scratch on every accepted fix and published whole.
type FusedEstimate struct {
	Speed          float64    `json:"speed"`
	SmoothedSpeed  float64    `json:"smoothedSpeed"`
	Latitude       float64    `json:"lat"`
	Longitude      float64    `json:"lon"`
	HeadingDegrees *float64   `json:"heading,omitempty"`
	Confidence     Confidence `json:"confidence"`
	IsMoving       bool       `json:"isMoving"`
	Acceleration   float64    `json:"acceleration"`

	// TimestampMs is the time of the fix this estimate was computed from.
	TimestampMs uint64 `json:"time"`

	// Pedaling is the latest inertial classifier verdict.
	// It is always false while calibrating or without a motion source.
	Pedaling bool `json:"pedaling"`

	// Position is the Kalman-filtered location, when the position filter is enabled.
	Position *Position `json:"position,omitempty"`
}

func (e FusedEstimate) Time() time.Time {
	return time.UnixMilli(int64(e.TimestampMs))
}
