package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/types"
)

// Replay pushes recorded records into m, paced by their timestamps divided by rate.
// A rate of zero or less pushes as fast as subscribers drain.
// An error record fails the matching subscriptions; a position error ends the replay with that error.
func Replay(ctx context.Context, m *Manual, records <-chan types.Record, rate float64) error {
	logger := slog.With("d", "replay")
	var last uint64
	n := 0
	for r := range records {
		if rate > 0 && last > 0 && r.TimestampMs > last {
			gap := time.Duration(float64(r.TimestampMs-last)/rate) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(gap):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if r.TimestampMs > 0 {
			last = r.TimestampMs
		}

		switch r.Kind {
		case types.RecordGeo:
			m.PushFix(*r.Geo)
		case types.RecordMotion:
			m.PushMotion(*r.Motion)
		case types.RecordError:
			err := fusion.ErrorFromCode(r.ErrorCode)
			logger.Info("Replaying error", "code", r.ErrorCode, "error", err)
			if errors.Is(err, fusion.ErrMotionUnavailable) {
				m.FailMotion(err)
				continue
			}
			m.FailPositions(err)
			return err
		}
		n++
	}
	logger.Info("Replay done", "records", n)
	return nil
}
