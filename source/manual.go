// Package source provides the position and motion sources the fusion engine subscribes to.
package source

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/velofuse/types/sample"
)

// Manual is a pushed source of both fixes and inertial samples.
// Platform bindings, the web daemon and replays push into it.
type Manual struct {
	positions event.FeedOf[sample.GeoSample]
	motion    event.FeedOf[sample.InertialSample]

	mu       sync.Mutex
	posFails map[chan error]struct{}
	motFails map[chan error]struct{}

	subscribed   atomic.Int64
	unsubscribed atomic.Int64
}

func NewManual() *Manual {
	return &Manual{
		posFails: map[chan error]struct{}{},
		motFails: map[chan error]struct{}{},
	}
}

func (m *Manual) SubscribePositions(ch chan<- sample.GeoSample) event.Subscription {
	return m.subscribe(m.posFails, m.positions.Subscribe(ch))
}

func (m *Manual) SubscribeMotion(ch chan<- sample.InertialSample) event.Subscription {
	return m.subscribe(m.motFails, m.motion.Subscribe(ch))
}

func (m *Manual) subscribe(fails map[chan error]struct{}, inner event.Subscription) event.Subscription {
	fail := make(chan error, 1)
	m.mu.Lock()
	fails[fail] = struct{}{}
	m.mu.Unlock()
	m.subscribed.Add(1)

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			inner.Unsubscribe()
			m.mu.Lock()
			delete(fails, fail)
			m.mu.Unlock()
			m.unsubscribed.Add(1)
		}()
		select {
		case <-quit:
			return nil
		case err := <-fail:
			return err
		}
	})
}

// PushFix delivers a fix to every position subscriber and returns how many received it.
// It blocks until all of them have.
func (m *Manual) PushFix(fix sample.GeoSample) int {
	return m.positions.Send(fix)
}

// PushMotion delivers an inertial sample to every motion subscriber.
func (m *Manual) PushMotion(s sample.InertialSample) int {
	return m.motion.Send(s)
}

// FailPositions ends every current position subscription with err.
func (m *Manual) FailPositions(err error) {
	m.fail(m.posFails, err)
}

// FailMotion ends every current motion subscription with err.
func (m *Manual) FailMotion(err error) {
	m.fail(m.motFails, err)
}

func (m *Manual) fail(fails map[chan error]struct{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for fail := range fails {
		select {
		case fail <- err:
		default:
		}
	}
}

// Active returns the number of live subscriptions.
func (m *Manual) Active() int64 {
	return m.subscribed.Load() - m.unsubscribed.Load()
}
