package params

import "time"

type JumpConfig struct {
	// JumpDistance is the absolute jump threshold in meters.
	// Any accepted-to-candidate displacement beyond this is a jump, whatever the speed.
	JumpDistance float64

	// JumpSpeedFactor scales the last reported speed to allow for acceleration.
	JumpSpeedFactor float64

	// JumpSpeedSlack is added to the scaled speed, m/s.
	JumpSpeedSlack float64

	// JumpUnknownSpeed is the plausible speed, m/s, assumed when the last accepted
	// fix carries no reported speed.
	JumpUnknownSpeed float64

	// JumpMinInterval is the shortest interval a jump can be judged over.
	// Fixes closer together than this are accepted unconditionally.
	JumpMinInterval time.Duration
}

func DefaultJumpConfig() JumpConfig {
	return JumpConfig{
		JumpDistance:     20,
		JumpSpeedFactor:  1.5,
		JumpSpeedSlack:   5,
		JumpUnknownSpeed: 30,
		JumpMinInterval:  100 * time.Millisecond,
	}
}
