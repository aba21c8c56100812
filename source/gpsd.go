package source

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/sample"
	"github.com/stratoberry/go-gpsd"
)

// GPSD is a position source backed by a gpsd daemon.
// It reconnects after a lost watch; after Config.MaxDialFailures consecutive failed
// dials the subscription ends with fusion.ErrPositionUnavailable.
type GPSD struct {
	Config *params.GPSDConfig
	logger *slog.Logger
}

func NewGPSD(config *params.GPSDConfig) *GPSD {
	if config == nil {
		config = params.DefaultGPSDConfig()
	}
	return &GPSD{Config: config, logger: slog.With("d", "gpsd")}
}

func (g *GPSD) SubscribePositions(ch chan<- sample.GeoSample) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		failures := 0
		for {
			select {
			case <-quit:
				return nil
			default:
			}

			session, err := gpsd.Dial(g.Config.Address)
			if err != nil {
				failures++
				g.logger.Warn("Failed to connect to gpsd", "address", g.Config.Address, "attempt", failures, "error", err)
				if g.Config.MaxDialFailures > 0 && failures >= g.Config.MaxDialFailures {
					return fmt.Errorf("%w: gpsd at %s: %v", fusion.ErrPositionUnavailable, g.Config.Address, err)
				}
				if !g.wait(quit) {
					return nil
				}
				continue
			}
			failures = 0
			g.logger.Info("Connected to gpsd", "address", g.Config.Address)

			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok {
					return
				}
				fix, ok := FixFromTPV(tpv, time.Now())
				if !ok {
					return
				}
				select {
				case <-quit:
				case ch <- fix:
				}
			})

			// Watch returns a channel that closes when the watch ends (eg. connection lost).
			// go-gpsd has no Close; the connection is left to the process on quit.
			done := session.Watch()
			select {
			case <-quit:
				return nil
			case <-done:
				g.logger.Warn("gpsd watch ended, reconnecting", "delay", g.Config.ReconnectDelay)
			}
			if !g.wait(quit) {
				return nil
			}
		}
	})
}

// wait sleeps for the reconnect delay. It returns false on quit.
func (g *GPSD) wait(quit <-chan struct{}) bool {
	select {
	case <-quit:
		return false
	case <-time.After(g.Config.ReconnectDelay):
		return true
	}
}

// FixFromTPV converts a gpsd TPV report to a fix received at now.
// Reports without at least a 2D fix are dropped.
func FixFromTPV(tpv *gpsd.TPVReport, now time.Time) (sample.GeoSample, bool) {
	if tpv == nil || tpv.Mode < gpsd.Mode2D {
		return sample.GeoSample{}, false
	}
	fix := sample.GeoSample{
		Latitude:    tpv.Lat,
		Longitude:   tpv.Lon,
		TimestampMs: uint64(now.UnixMilli()),
	}
	if !math.IsNaN(tpv.Speed) && tpv.Speed >= 0 {
		fix.ReportedSpeed = sample.Float(tpv.Speed)
	}
	if acc := math.Max(tpv.Epx, tpv.Epy); acc > 0 && !math.IsNaN(acc) {
		fix.Accuracy = sample.Float(acc)
	}
	return fix, true
}
