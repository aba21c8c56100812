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
	"errors"
	"fmt"
	"github.com/dustin/go-humanize"
	"github.com/rotblauer/velofuse/common"
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/params"
	"github.com/rotblauer/velofuse/recording"
	"github.com/rotblauer/velofuse/stream"
	"github.com/rotblauer/velofuse/types"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Fuse a recorded session from stdin, writing estimates to stdout",
	Long: `Records are read as ndjson from stdin and handled strictly in order by a single
fusion session, as if they were arriving live. Every accepted fix produces one
estimate, written to stdout as a JSON line. Gzipped input is detected. Fixes rejected as jumps produce nothing.

A motion error record drops the session to GPS alone. A position error record
ends the replay with that error, as it would end a live session.

Examples:

  cat ride.ndjson | velofuse replay --position-filter > estimates.ndjson
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
		counts, err := replaySession(ctx, fusionConfig(), in, os.Stdout)
		slog.Info("Replay done",
			"accepted", humanize.Comma(counts.Accepted),
			"rejected", humanize.Comma(counts.Rejected),
			"inertial", humanize.Comma(counts.Inertial))
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalln(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	addFusionFlags(replayCmd.Flags())
}

// replaySession runs every record from r through one session and writes the
// published estimates to w as ndjson.
func replaySession(ctx context.Context, config *params.FusionConfig, r io.Reader, w io.Writer) (fusion.Counts, error) {
	session := fusion.NewSession(config)
	quit := make(chan struct{})
	defer close(quit)
	records, errs := stream.ScanRecords(r, quit)
	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			return session.Counts(), ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return session.Counts(), scanErr(errs)
			}
			switch rec.Kind {
			case types.RecordGeo:
				est, err := session.HandleFix(*rec.Geo)
				if errors.Is(err, fusion.ErrSampleRejected) {
					continue
				}
				if err != nil {
					return session.Counts(), err
				}
				if err := enc.Encode(est); err != nil {
					return session.Counts(), fmt.Errorf("write estimate: %w", err)
				}
			case types.RecordMotion:
				session.HandleMotion(*rec.Motion)
			case types.RecordError:
				err := fusion.ErrorFromCode(rec.ErrorCode)
				if errors.Is(err, fusion.ErrMotionUnavailable) {
					session.DisableMotion()
					continue
				}
				return session.Counts(), err
			}
		}
	}
}

// scanErr drains a finished scanner's errors. Undecodable lines are logged and
// skipped; anything else broke the stream and is returned.
func scanErr(errs <-chan error) error {
	var broken error
	for err := range errs {
		if errors.Is(err, types.ErrDecodeRecord) {
			slog.Warn("Skipped record", "error", err)
			continue
		}
		broken = err
	}
	return broken
}
