package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rotblauer/velofuse/types"
	"io"
	"log/slog"
	"time"
)

// ScanRecords decodes a recorded session (ndjson) from reader, in order.
// Lines that do not decode are reported on the error channel and skipped;
// a broken stream ends the scan. Both channels are closed when the scan ends.
// The quit channel interrupts the read loop.
func ScanRecords(reader io.Reader, quit <-chan struct{}) (<-chan types.Record, chan error) {
	out := make(chan types.Record)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(out)
		dec := json.NewDecoder(reader)

		met := newTickScanMeter(5 * time.Second)
		defer met.stop()
		defer met.log("Scanned records")

		for {
			select {
			case <-quit:
				slog.Info("Record scanner received quit")
				return
			default:
			}
			msg := json.RawMessage{}
			if err := dec.Decode(&msg); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				sendErr(errs, fmt.Errorf("scanner(%w)", err))
				return
			}

			r, err := types.DecodeRecord(msg)
			if err != nil {
				met.markInvalid(msg)
				sendErr(errs, fmt.Errorf("%w in line: %s", err, string(msg)))
				continue
			}
			met.mark(r, msg)

			select {
			case <-quit:
				slog.Info("Record scanner received quit")
				return
			case out <- r:
			}
		}
	}()
	return out, errs
}

// sendErr delivers err if the error channel has room. Otherwise it is logged and dropped.
func sendErr(errs chan error, err error) {
	select {
	case errs <- err:
	default:
		slog.Warn("Record scanner dropped error", "error", err)
	}
}
