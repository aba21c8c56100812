package recording

import (
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/types"
	"github.com/rotblauer/velofuse/types/sample"
)

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

type positions struct {
	src fusion.PositionSource
	w   *Writer
}

// Positions wraps src so that every fix, and the error that ends a subscription,
// is recorded to w on its way to the subscriber.
func Positions(src fusion.PositionSource, w *Writer) fusion.PositionSource {
	return &positions{src: src, w: w}
}

func (p *positions) SubscribePositions(ch chan<- sample.GeoSample) event.Subscription {
	inner := make(chan sample.GeoSample, cap(ch))
	sub := p.src.SubscribePositions(inner)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case <-quit:
				return nil
			case err, ok := <-sub.Err():
				if !ok {
					return nil
				}
				p.w.tee(types.Record{Kind: types.RecordError, ErrorCode: fusion.ErrorCode(err), TimestampMs: nowMs()})
				return err
			case fix := <-inner:
				p.w.tee(types.Record{Kind: types.RecordGeo, Geo: &fix, TimestampMs: fix.TimestampMs})
				select {
				case ch <- fix:
				case <-quit:
					return nil
				}
			}
		}
	})
}

type motions struct {
	src fusion.MotionSource
	w   *Writer
}

// Motion is Positions for inertial samples.
func Motion(src fusion.MotionSource, w *Writer) fusion.MotionSource {
	return &motions{src: src, w: w}
}

func (m *motions) SubscribeMotion(ch chan<- sample.InertialSample) event.Subscription {
	inner := make(chan sample.InertialSample, cap(ch))
	sub := m.src.SubscribeMotion(inner)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case <-quit:
				return nil
			case err, ok := <-sub.Err():
				if !ok {
					return nil
				}
				code := fusion.ErrorCode(fusion.ErrMotionUnavailable)
				m.w.tee(types.Record{Kind: types.RecordError, ErrorCode: code, TimestampMs: nowMs()})
				return err
			case s := <-inner:
				m.w.tee(types.Record{Kind: types.RecordMotion, Motion: &s, TimestampMs: s.TimestampMs})
				select {
				case ch <- s:
				case <-quit:
					return nil
				}
			}
		}
	})
}
