package stream

import (
	"github.com/dustin/go-humanize"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/types"
	"log/slog"
	"sync"
	"time"
)

// tickScanMeter logs read progress every interval until stopped.
type tickScanMeter struct {
	mu         sync.Mutex
	label      time.Time // time of the last record read
	interval   time.Duration
	started    time.Time
	ticker     *time.Ticker
	done       chan struct{}
	reg        metrics.Registry
	kinds      map[types.RecordKind]metrics.Counter
	invalid    metrics.Counter
	countMeter metrics.Meter
	sizeMeter  metrics.Meter
}

func newTickScanMeter(interval time.Duration) *tickScanMeter {
	reg := metrics.NewRegistry()
	rl := &tickScanMeter{
		reg:        reg,
		interval:   interval,
		started:    time.Now(),
		done:       make(chan struct{}),
		kinds:      map[types.RecordKind]metrics.Counter{},
		invalid:    metrics.NewRegisteredCounter("records.invalid", reg),
		countMeter: metrics.NewRegisteredMeter("line.meter", reg),
		sizeMeter:  metrics.NewRegisteredMeter("size.meter", reg),
	}
	for _, k := range []types.RecordKind{types.RecordGeo, types.RecordMotion, types.RecordError} {
		rl.kinds[k] = metrics.NewRegisteredCounter("records."+string(k), reg)
	}
	rl.ticker = time.NewTicker(interval)
	go rl.run()
	return rl
}

func (rl *tickScanMeter) mark(r types.Record, data []byte) {
	rl.mu.Lock()
	rl.label = time.UnixMilli(int64(r.TimestampMs))
	rl.mu.Unlock()
	if c, ok := rl.kinds[r.Kind]; ok {
		c.Inc(1)
	}
	rl.countMeter.Mark(1)
	rl.sizeMeter.Mark(int64(len(data)))
}

func (rl *tickScanMeter) markInvalid(data []byte) {
	rl.invalid.Inc(1)
	rl.countMeter.Mark(1)
	rl.sizeMeter.Mark(int64(len(data)))
}

func (rl *tickScanMeter) count(kind types.RecordKind) int64 {
	if c, ok := rl.kinds[kind]; ok {
		return c.Snapshot().Count()
	}
	return 0
}

func (rl *tickScanMeter) run() {
	for {
		select {
		case <-rl.done:
			return
		case <-rl.ticker.C:
			rl.log("Read records")
		}
	}
}

func (rl *tickScanMeter) log(msg string) {
	countSnap := rl.countMeter.Snapshot()
	sizeSnap := rl.sizeMeter.Snapshot()
	rl.mu.Lock()
	label := rl.label
	rl.mu.Unlock()

	slog.Info(msg, "n", humanize.Comma(countSnap.Count()),
		"geo", humanize.Comma(rl.count(types.RecordGeo)),
		"motion", humanize.Comma(rl.count(types.RecordMotion)),
		"invalid", humanize.Comma(rl.invalid.Snapshot().Count()),
		"read.last", label.Format(time.DateTime),
		"rps", common.DecimalToFixed(countSnap.Rate1(), 0),
		"total.bytes", humanize.Bytes(uint64(sizeSnap.Count())),
		"running", time.Since(rl.started).Round(time.Second))
}

func (rl *tickScanMeter) stop() {
	if rl == nil || rl.ticker == nil {
		return
	}
	rl.ticker.Stop()
	close(rl.done)
	rl.countMeter.Stop()
	rl.sizeMeter.Stop()
}
