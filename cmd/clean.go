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
	"encoding/json"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/geo/cleaner"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/recording"
	"github.com/rotblauer/velofuse/stream"
	"github.com/rotblauer/velofuse/types"
	"github.com/rotblauer/velofuse/types/sample"
	"io"
	"log"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
)

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop GPS jumps from a recorded session",
	Long: `Reads a recorded session (ndjson) from stdin and writes only the geo records
that pass jump rejection, in order. Gzipped input is detected. Motion and error records are dropped.

Examples:

  cat ride.ndjson | velofuse clean --jump-distance 30 > ride.clean.ndjson
`,
	Run: func(cmd *cobra.Command, args []string) {
		setDefaultSlog(cmd, args)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			sig := <-common.Interrupted()
			slog.Warn("Received signal", "signal", sig)
			cancel()
		}()

		in, err := recording.NewReader(os.Stdin)
		if err != nil {
			log.Fatalln(err)
		}
		kept, rejected, err := cleanFixes(ctx, fusionConfig(), in, os.Stdout)
		slog.Info("Clean done", "kept", humanize.Comma(int64(kept)), "rejected", humanize.Comma(int64(rejected)))
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	addFusionFlags(cleanCmd.Flags())
}

// cleanFixes copies the geo records of r that pass jump rejection to w.
func cleanFixes(ctx context.Context, config *params.FusionConfig, r io.Reader, w io.Writer) (kept, rejected int, err error) {
	quit := make(chan struct{})
	defer close(quit)
	records, errs := stream.ScanRecords(r, quit)

	geos := stream.Filter(ctx, func(rec types.Record) bool {
		return rec.Kind == types.RecordGeo
	}, records)
	fixes := stream.Transform(ctx, func(rec types.Record) sample.GeoSample {
		return *rec.Geo
	}, geos)
	var dropped atomic.Int64
	clean := cleaner.JumpFilter(ctx, config.JumpConfig, config.HistorySize, fixes, func(fix sample.GeoSample) {
		dropped.Add(1)
		slog.Debug("Dropped jump", "time", fix.TimestampMs)
	})

	enc := json.NewEncoder(w)
	for fix := range clean {
		if err := enc.Encode(types.Record{Kind: types.RecordGeo, Geo: &fix, TimestampMs: fix.TimestampMs}); err != nil {
			return kept, int(dropped.Load()), fmt.Errorf("write fix: %w", err)
		}
		kept++
	}
	rejected = int(dropped.Load())
	if err := ctx.Err(); err != nil {
		return kept, rejected, err
	}
	return kept, rejected, scanErr(errs)
}
