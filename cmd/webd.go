/*
Copyright © 2024 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/daemon/webd"
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/metrics/influxdb"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/recording"
	"github.com/rotblauer/velofuse/source"
	"github.com/rotblauer/velofuse/stream"
	"github.com/spf13/viper"
	"log"
	"log/slog"

	"github.com/spf13/cobra"
)

const (
	sourceGPSD   = "gpsd"
	sourcePush   = "push"
	sourceReplay = "replay"
)

// webdCmd represents the serve command
var webdCmd = &cobra.Command{
	Use:   "webd",
	Short: "Start the webserver",
	Long: `Runs a live fusion engine and serves it over HTTP and a websocket.

Sources:

  gpsd    Fixes from a gpsd daemon (--gpsd). Inertial samples, if any, arrive by POST /push.
  push    Fixes and inertial samples both arrive by POST /push.
  replay  A recorded session (--replay-file) is pushed in, paced by its timestamps (--rate).

Endpoints:

  GET  /ping /status /estimate /raw
  POST /start /stop /recalibrate /push   (X-Velofuse-Token when VELOFUSE_TOKEN is set)
  WS   /socket

With --record, every fix, inertial sample and source error the engine receives is
appended to a gzipped session file that replay, clean and --source replay read back.

Estimates are also written to InfluxDB when INFLUXDB_URL and INFLUXDB_BUCKET are set.
`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)
		slog.Info("webd.Run")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			sig := <-common.Interrupted()
			slog.Warn("Received signal", "signal", sig)
			cancel()
		}()

		mode := viper.GetString("source")
		pushed := source.NewManual()
		var positions fusion.PositionSource = pushed
		switch mode {
		case sourceGPSD:
			gpsdConfig := params.DefaultGPSDConfig()
			gpsdConfig.Address = viper.GetString("gpsd")
			positions = source.NewGPSD(gpsdConfig)
		case sourcePush, sourceReplay:
		default:
			log.Fatalln(fmt.Errorf("unknown source %q", mode))
		}
		var motions fusion.MotionSource = pushed
		if path := viper.GetString("record"); path != "" {
			recorder, err := recording.NewWriter(path, recording.DefaultWriterConfig())
			if err != nil {
				log.Fatalln(err)
			}
			defer recorder.Close()
			positions = recording.Positions(positions, recorder)
			motions = recording.Motion(motions, recorder)
			slog.Info("Recording session", "path", recorder.Path())
		}
		engine := fusion.NewEngine(fusionConfig(), positions, motions)

		config := params.DefaultWebDaemonConfig()
		config.Address = viper.GetString("address")
		config.EstimateTTL = viper.GetDuration("estimate-ttl")
		config.AutoStart = viper.GetBool("auto-start")
		server, err := webd.NewWebDaemon(config, engine, pushed)
		if err != nil {
			log.Fatalln(err)
		}

		if influx := params.DefaultInfluxConfig(); influx.Enabled() {
			exporter := influxdb.NewExporter(influx, map[string]string{"source": mode})
			go func() {
				if err := exporter.Run(ctx, engine); err != nil {
					slog.Error("Influx exporter stopped", "error", err)
				}
			}()
		}

		if mode == sourceReplay {
			if err := engine.Start(); err != nil {
				log.Fatalln(err)
			}
			go func() {
				err := replayFile(ctx, pushed, viper.GetString("replay-file"), viper.GetFloat64("rate"))
				if err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("Replay ended", "error", err)
				}
			}()
		}

		if err := server.Run(ctx); err != nil {
			slog.Error("Web daemon failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(webdCmd)

	defaults := params.DefaultWebDaemonConfig()

	flags := webdCmd.Flags()
	flags.String("address", defaults.Address, "HTTP address to listen on")
	flags.Duration("estimate-ttl", defaults.EstimateTTL, "How long the last estimate is served before it is stale")
	flags.Bool("auto-start", defaults.AutoStart, "Start tracking when the daemon starts")
	flags.String("source", sourceGPSD, "Position source: gpsd, push or replay")
	flags.String("gpsd", params.DefaultGPSDConfig().Address, "gpsd address")
	flags.String("replay-file", "", "Recorded session (ndjson) for --source replay")
	flags.Float64("rate", 1, "Replay speed multiplier; 0 replays as fast as the engine drains")
	flags.String("record", "", "Append the received session to this gzipped ndjson file")
	addFusionFlags(flags)
}

// replayFile pushes a recorded session from path into m.
func replayFile(ctx context.Context, m *source.Manual, path string, rate float64) error {
	f, err := recording.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	records, errs := stream.ScanRecords(f, ctx.Done())
	if err := source.Replay(ctx, m, records, rate); err != nil {
		return err
	}
	return scanErr(errs)
}
