package cleaner

import (
	"context"

	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/sample"
)

// JumpFilter passes along only the fixes a JumpValidator accepts, judging each against
// a bounded history of the fixes already passed.
// onReject, if not nil, is called for every dropped fix.
func JumpFilter(ctx context.Context, config params.JumpConfig, historySize int, in <-chan sample.GeoSample, onReject func(sample.GeoSample)) <-chan sample.GeoSample {
	out := make(chan sample.GeoSample)
	validator := NewJumpValidator(config)
	history := common.NewRingBuffer[sample.GeoSample](historySize)

	go func() {
		defer close(out)
		for fix := range in {
			if validator.Validate(history, fix) == RejectedAsJump {
				if onReject != nil {
					onReject(fix)
				}
				continue
			}
			history.Add(fix)
			select {
			case <-ctx.Done():
				return
			case out <- fix:
			}
		}
	}()
	return out
}
