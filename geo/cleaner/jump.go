package cleaner

import (
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/sample"
)

type Verdict int

const (
	Accepted Verdict = iota
	RejectedAsJump
)

func (v Verdict) String() string {
	if v == RejectedAsJump {
		return "rejected"
	}
	return "accepted"
}

// History is the read side of the accepted-fix history the validator judges against.
type History interface {
	Len() int
	Last() sample.GeoSample
}

// JumpValidator rejects fixes that imply an implausible displacement since the last
// accepted fix. These are multipath and signal-loss artifacts, not motion.
type JumpValidator struct {
	Config params.JumpConfig
}

func NewJumpValidator(config params.JumpConfig) *JumpValidator {
	return &JumpValidator{Config: config}
}

// MaxPlausibleSpeed is the fastest the cyclist could credibly be going after last, m/s.
func (v *JumpValidator) MaxPlausibleSpeed(last sample.GeoSample) float64 {
	if last.ReportedSpeed == nil {
		return v.Config.JumpUnknownSpeed
	}
	return *last.ReportedSpeed*v.Config.JumpSpeedFactor + v.Config.JumpSpeedSlack
}

func (v *JumpValidator) Validate(history History, candidate sample.GeoSample) Verdict {
	// The first fix is always accepted.
	if history == nil || history.Len() == 0 {
		return Accepted
	}
	last := history.Last()

	// Too close in time to judge.
	dt := candidate.SecondsSince(last)
	if dt < v.Config.JumpMinInterval.Seconds() {
		return Accepted
	}

	dist := last.DistanceTo(candidate)
	if dist > v.MaxPlausibleSpeed(last)*dt || dist > v.Config.JumpDistance {
		return RejectedAsJump
	}
	return Accepted
}
