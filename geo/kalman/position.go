package kalman

import (
	"fmt"
	"math"

	rkalman "github.com/regnull/kalman"
	"github.com/rotblauer/velofuse/types/estimate"
	"github.com/rotblauer/velofuse/types/sample"
)

// PositionFilter is a lat/lng/speed Kalman filter over accepted fixes.
// It is seeded lazily by the first fix it observes.
type PositionFilter struct {
	filter *rkalman.GeoFilter
	last   sample.GeoSample
	est    estimate.Position
}

func NewPositionFilter() *PositionFilter {
	return &PositionFilter{}
}

func (p *PositionFilter) reset(fix sample.GeoSample) error {
	speed := math.Max(1, fix.SpeedOr(0))
	processNoise := &rkalman.GeoProcessNoise{
		// We assume the measurements will take place at the approximately the
		// same location, so that we can disregard the earth's curvature.
		BaseLat: fix.Latitude,
		// How much do we expect the cyclist to move, meters per second.
		DistancePerSecond: speed,
		// How much do we expect the cyclist's speed to change, meters per second squared.
		SpeedPerSecond: math.Sqrt(speed),
	}
	filter, err := rkalman.NewGeoFilter(processNoise)
	if err != nil {
		return fmt.Errorf("init position filter: %w", err)
	}
	p.filter = filter
	p.last = fix
	p.est = estimate.Position{Latitude: fix.Latitude, Longitude: fix.Longitude}
	return nil
}

// Observe feeds an accepted fix and returns the filtered position.
// heading is the course over ground in degrees, if known.
func (p *PositionFilter) Observe(fix sample.GeoSample, heading *float64) (estimate.Position, error) {
	if p.filter == nil {
		err := p.reset(fix)
		return p.est, err
	}
	td := fix.SecondsSince(p.last)
	if td <= 0 {
		return p.est, nil
	}
	speed := math.Max(0, fix.SpeedOr(0))
	obs := &rkalman.GeoObserved{
		Lat:                fix.Latitude,
		Lng:                fix.Longitude,
		Speed:              speed,
		SpeedAccuracy:      math.Sqrt(speed),
		HorizontalAccuracy: 1,
		VerticalAccuracy:   1,
	}
	if fix.Accuracy != nil {
		obs.HorizontalAccuracy = *fix.Accuracy + 1
	}
	if heading != nil {
		obs.Direction = *heading
		obs.DirectionAccuracy = 10
	}
	if err := p.filter.Observe(td, obs); err != nil {
		return p.est, fmt.Errorf("position filter observe: %w", err)
	}
	p.last = fix
	if e := p.filter.Estimate(); e != nil {
		p.est = estimate.Position{Latitude: e.Lat, Longitude: e.Lng}
	}
	return p.est, nil
}
