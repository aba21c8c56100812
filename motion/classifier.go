package motion

import (
	"math"

	"github.com/rotblauer/velofuse/types/sample"
)

// Classifier decides whether a single inertial sample looks like pedaling.
// Any learned model can replace the heuristic behind the same contract.
type Classifier interface {
	IsPedaling(s sample.InertialSample) bool
}

// ClassifierFunc adapts a plain function to a Classifier.
type ClassifierFunc func(s sample.InertialSample) bool

func (f ClassifierFunc) IsPedaling(s sample.InertialSample) bool {
	return f(s)
}

// Heuristic is a coarse, hand-tuned pedaling detector, not a trained classifier.
// A bike stays fairly upright, so pedaling shows vertical oscillation and forward
// acceleration with little sideways motion.
var Heuristic Classifier = ClassifierFunc(LooksLikePedaling)

func LooksLikePedaling(s sample.InertialSample) bool {
	y := math.Abs(s.Accel.Y)
	verticalOscillation := y > 1.5 && y < 8
	forwardMotion := math.Abs(s.Accel.Z) > 1.0
	minimalSidewaysMotion := math.Abs(s.Accel.X) < 3.0
	return verticalOscillation && forwardMotion && minimalSidewaysMotion
}
