package influxdb

import (
	"context"
	"github.com/ethereum/go-ethereum/event"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/types/estimate"
	"log/slog"
	"sync"
	"time"
)

const measurement = "velofuse"

// EstimatePoint converts an estimate to a point. tags are added as-is, eg. the rider or device.
func EstimatePoint(est estimate.FusedEstimate, tags map[string]string) *write.Point {
	p := influxdb2.NewPointWithMeasurement(measurement).
		SetTime(est.Time()).
		AddTag("confidence", est.Confidence.String()).
		AddField("latitude", est.Latitude).
		AddField("longitude", est.Longitude).
		AddField("speed", est.Speed).
		AddField("smoothed_speed", est.SmoothedSpeed).
		AddField("smoothed_kph", common.DecimalToFixed(common.MetersPerSecondToKPH(est.SmoothedSpeed), 1)).
		AddField("acceleration", est.Acceleration).
		AddField("moving", est.IsMoving).
		AddField("pedaling", est.Pedaling)
	for k, v := range tags {
		p.AddTag(k, v)
	}
	if est.HeadingDegrees != nil {
		p.AddField("heading", *est.HeadingDegrees)
	}
	if est.Position != nil {
		p.AddField("filtered_latitude", est.Position.Latitude)
		p.AddField("filtered_longitude", est.Position.Longitude)
	}
	return p
}

func newClient(config *params.InfluxConfig) influxdb2.Client {
	opts := influxdb2.DefaultOptions()
	opts.SetPrecision(time.Millisecond)
	if config.BatchSize > 0 {
		opts.SetBatchSize(uint(config.BatchSize))
	}
	if config.FlushInterval > 0 {
		opts.SetFlushInterval(uint(config.FlushInterval.Milliseconds()))
	}
	return influxdb2.NewClientWithOptions(config.URL, config.Token, opts)
}

// ExportEstimates posts estimates to an InfluxDB Write API.
// Because it accepts a slice, use batches. The Write API will buffer and flush.
// The last error encountered is returned.
func ExportEstimates(config *params.InfluxConfig, estimates []estimate.FusedEstimate, tags map[string]string) error {
	client := newClient(config)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	// Errors returns a channel for reading errors which occurs during async writes.
	// Must be called before performing any writes for errors to be collected.
	// The chan is unbuffered and must be drained or the writer will block.
	errorsCh := writeAPI.Errors()
	var err error
	wait := sync.WaitGroup{}
	wait.Add(1)
	go func() {
		defer wait.Done()
		for e := range errorsCh {
			if e != nil {
				err = e
			}
		}
	}()

	for _, est := range estimates {
		writeAPI.WritePoint(EstimatePoint(est, tags))
	}
	writeAPI.Flush()
	client.Close()
	wait.Wait()
	return err
}

// EstimateSource is anything publishing estimates, eg. a fusion engine.
type EstimateSource interface {
	SubscribeEstimates(ch chan<- estimate.FusedEstimate) event.Subscription
}

// Exporter writes every estimate a source publishes until its context is done.
type Exporter struct {
	Config *params.InfluxConfig
	Tags   map[string]string
	logger *slog.Logger
}

func NewExporter(config *params.InfluxConfig, tags map[string]string) *Exporter {
	if config == nil {
		config = params.DefaultInfluxConfig()
	}
	return &Exporter{Config: config, Tags: tags, logger: slog.With("d", "influx")}
}

// Run blocks, exporting estimates from src, until ctx is done. Write errors are logged.
func (x *Exporter) Run(ctx context.Context, src EstimateSource) error {
	client := newClient(x.Config)
	defer client.Close()
	writeAPI := client.WriteAPI(x.Config.Org, x.Config.Bucket)
	defer writeAPI.Flush()

	errorsCh := writeAPI.Errors()
	go func() {
		for e := range errorsCh {
			if e != nil {
				x.logger.Warn("Influx write failed", "error", e)
			}
		}
	}()

	estimates := make(chan estimate.FusedEstimate, x.Config.BatchSize+1)
	sub := src.SubscribeEstimates(estimates)
	defer sub.Unsubscribe()

	x.logger.Info("Exporting estimates", "url", x.Config.URL, "bucket", x.Config.Bucket)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case est := <-estimates:
			writeAPI.WritePoint(EstimatePoint(est, x.Tags))
		}
	}
}
