package fusion

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/estimate"
	"github.com/rotblauer/velofuse/types/sample"
)

// PositionSource delivers GPS fixes into ch until the subscription is cancelled.
// A failing source reports one of the position errors on the subscription's Err channel.
type PositionSource interface {
	SubscribePositions(ch chan<- sample.GeoSample) event.Subscription
}

// MotionSource delivers inertial samples into ch until the subscription is cancelled.
type MotionSource interface {
	SubscribeMotion(ch chan<- sample.InertialSample) event.Subscription
}

type SessionState int

const (
	Idle SessionState = iota
	Tracking
)

func (s SessionState) String() string {
	if s == Tracking {
		return "tracking"
	}
	return "idle"
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	State            SessionState            `json:"-"`
	Tracking         bool                    `json:"tracking"`
	Calibrating      bool                    `json:"calibrating"`
	Calibrated       bool                    `json:"calibrated"`
	MotionAvailable  bool                    `json:"motionAvailable"`
	InertialMoving   bool                    `json:"inertialMoving"`
	InertialSpeed    float64                 `json:"inertialSpeed"`
	MotionConfidence float64                 `json:"motionConfidence"`
	NoiseThreshold   float64                 `json:"noiseThreshold"`
	Raw              *sample.GeoSample       `json:"raw,omitempty"`
	Latest           *estimate.FusedEstimate `json:"latest,omitempty"`
	Counts           Counts                  `json:"counts"`
	LastError        string                  `json:"lastError,omitempty"`
}

const (
	fixBuffer    = 16
	motionBuffer = 128
)

// run is one Tracking period, from Start to Stop or a terminal position error.
type run struct {
	gen      uint64
	session  *Session
	quit     chan struct{}
	done     chan struct{}
	recal    chan struct{}
	stopOnce sync.Once
}

func (r *run) stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

func (r *run) stopped() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

// Engine combines a position source and an optional motion source into a stream of
// fused estimates. Estimates are delivered to subscribers in fix order.
// Feed delivery blocks until every subscriber has received, so subscribers must drain.
type Engine struct {
	Config *params.FusionConfig

	positions PositionSource
	motions   MotionSource
	logger    *slog.Logger

	mu   sync.Mutex
	run  *run
	runs uint64

	// statusMu guards status and current. Only the run whose gen is current
	// may write the status.
	statusMu sync.RWMutex
	status   Status
	current  uint64

	estimates event.FeedOf[estimate.FusedEstimate]
	failures  event.FeedOf[error]
}

// NewEngine returns an Idle engine. motions may be nil for GPS-only operation.
func NewEngine(config *params.FusionConfig, positions PositionSource, motions MotionSource) *Engine {
	if config == nil {
		config = params.DefaultFusionConfig()
	}
	return &Engine{
		Config:    config,
		positions: positions,
		motions:   motions,
		logger:    slog.With("d", "engine"),
	}
}

// Start begins a Tracking session with fresh filters, history and calibration.
// Starting an engine that is already tracking is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil {
		return nil
	}
	if e.positions == nil {
		e.setError(ErrPositionUnavailable)
		return ErrPositionUnavailable
	}

	e.runs++
	r := &run{
		gen:     e.runs,
		session: NewSession(e.Config),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		recal:   make(chan struct{}, 1),
	}
	fixes := make(chan sample.GeoSample, fixBuffer)
	posSub := e.positions.SubscribePositions(fixes)

	var motions chan sample.InertialSample
	var motSub event.Subscription
	if e.motions != nil {
		motions = make(chan sample.InertialSample, motionBuffer)
		motSub = e.motions.SubscribeMotion(motions)
	} else {
		r.session.DisableMotion()
	}

	e.run = r
	e.statusMu.Lock()
	e.current = r.gen
	e.status.LastError = ""
	e.statusMu.Unlock()
	e.snapshot(r, nil)
	e.logger.Info("Tracking started", "motion", r.session.MotionAvailable())

	go e.loop(r, fixes, posSub, motions, motSub)
	return nil
}

// Stop returns the engine to Idle and waits for the session goroutine to exit.
// It is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	r := e.run
	e.run = nil
	e.mu.Unlock()
	if r == nil {
		return
	}
	r.stop()
	<-r.done

	counts := r.session.Counts()
	e.statusMu.Lock()
	if e.current == r.gen {
		e.status.State = Idle
		e.status.Tracking = false
	}
	e.statusMu.Unlock()
	e.logger.Info("Tracking stopped",
		"accepted", humanize.Comma(counts.Accepted),
		"rejected", humanize.Comma(counts.Rejected),
		"inertial", humanize.Comma(counts.Inertial))
}

// RequestRecalibration restarts motion calibration on the running session.
func (e *Engine) RequestRecalibration() error {
	e.mu.Lock()
	r := e.run
	e.mu.Unlock()
	if r == nil {
		return ErrNotTracking
	}
	if !e.Status().MotionAvailable {
		return ErrMotionUnavailable
	}
	select {
	case r.recal <- struct{}{}:
	default:
		// One is already pending.
	}
	return nil
}

func (e *Engine) SubscribeEstimates(ch chan<- estimate.FusedEstimate) event.Subscription {
	return e.estimates.Subscribe(ch)
}

// SubscribeErrors delivers terminal position errors and motion degradation.
func (e *Engine) SubscribeErrors(ch chan<- error) event.Subscription {
	return e.failures.Subscribe(ch)
}

func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

func (e *Engine) IsTracking() bool {
	return e.Status().Tracking
}

func (e *Engine) IsCalibrating() bool {
	return e.Status().Calibrating
}

// Raw returns the most recent fix as received, accepted or not.
func (e *Engine) Raw() *sample.GeoSample {
	return e.Status().Raw
}

func (e *Engine) loop(r *run, fixes <-chan sample.GeoSample, posSub event.Subscription,
	motions <-chan sample.InertialSample, motSub event.Subscription) {
	defer close(r.done)
	defer func() {
		posSub.Unsubscribe()
		if motSub != nil {
			motSub.Unsubscribe()
		}
	}()

	posErr := posSub.Err()
	var motErr <-chan error
	if motSub != nil {
		motErr = motSub.Err()
	}

	for {
		select {
		case <-r.quit:
			return

		case fix := <-fixes:
			if r.stopped() {
				return
			}
			est, err := r.session.HandleFix(fix)
			e.snapshot(r, nil)
			if err == nil {
				e.estimates.Send(est)
			}

		case m := <-motions:
			if r.stopped() {
				return
			}
			r.session.HandleMotion(m)
			e.snapshot(r, nil)

		case <-r.recal:
			if r.stopped() {
				return
			}
			if err := r.session.RequestRecalibration(); err != nil {
				e.logger.Warn("Recalibration refused", "error", err)
			}
			e.snapshot(r, nil)

		case err, ok := <-posErr:
			if !ok {
				// The source ended without error; keep the session until stopped.
				posErr = nil
				continue
			}
			if !IsPositionError(err) {
				err = errors.Join(ErrPositionUnavailable, err)
			}
			e.fail(r, err)
			return

		case err, ok := <-motErr:
			motErr = nil
			motions = nil
			if ok && err != nil {
				e.logger.Warn("Motion source failed", "error", err)
			}
			if r.stopped() {
				return
			}
			r.session.DisableMotion()
			e.snapshot(r, ErrMotionUnavailable)
			e.failures.Send(ErrMotionUnavailable)
		}
	}
}

// fail ends the run on a terminal position error.
func (e *Engine) fail(r *run, err error) {
	e.mu.Lock()
	owned := e.run == r
	if owned {
		e.run = nil
	}
	e.mu.Unlock()
	r.stop()
	if !owned {
		// Already stopped; the error belongs to a finished run.
		e.logger.Warn("Position source failed after stop", "error", err)
		return
	}

	e.snapshot(r, err)
	e.logger.Error("Position source failed, tracking stopped", "error", err)
	e.failures.Send(err)
}

func (e *Engine) setError(err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.status.LastError = err.Error()
}

// snapshot copies the session state into the engine status. Only the run's own
// goroutine and Start call it.
func (e *Engine) snapshot(r *run, err error) {
	s := r.session
	st := Status{
		State:            Tracking,
		Tracking:         true,
		Calibrating:      s.IsCalibrating(),
		Calibrated:       s.Calibrated(),
		MotionAvailable:  s.MotionAvailable(),
		InertialMoving:   s.InertialMoving(),
		InertialSpeed:    s.InertialSpeed(),
		MotionConfidence: s.MotionConfidence(),
		NoiseThreshold:   s.NoiseThreshold(),
		Raw:              s.Raw(),
		Latest:           s.Previous(),
		Counts:           s.Counts(),
	}
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if e.current != r.gen {
		return
	}
	if r.stopped() {
		st.State = Idle
		st.Tracking = false
	}
	st.LastError = e.status.LastError
	if err != nil {
		st.LastError = err.Error()
	}
	e.status = st
}
