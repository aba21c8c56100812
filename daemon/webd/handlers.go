package webd

import (
	"encoding/json"
	"errors"
	"github.com/rotblauer/velofuse/fusion"
	"github.com/rotblauer/velofuse/stream"
	"github.com/rotblauer/velofuse/types"
	"net/http"
	"time"
)

func pingPong(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type webDaemonStatus struct {
	StartedAt time.Time              `json:"started_at"`
	Uptime    string                 `json:"uptime"`
	WSConns   int                    `json:"ws_conns"`
	Engine    fusion.Status          `json:"engine"`
	Config    *webDaemonStatusConfig `json:"config"`
}

type webDaemonStatusConfig struct {
	Address     string `json:"address"`
	EstimateTTL string `json:"estimate_ttl"`
	AutoStart   bool   `json:"auto_start"`
	Push        bool   `json:"push"`
}

func (s *WebDaemon) statusReport(w http.ResponseWriter, r *http.Request) {
	st := webDaemonStatus{
		StartedAt: s.started,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		WSConns:   s.melodyInstance.Len(),
		Engine:    s.Engine.Status(),
		Config: &webDaemonStatusConfig{
			Address:     s.Config.Address,
			EstimateTTL: s.Config.EstimateTTL.String(),
			AutoStart:   s.Config.AutoStart,
			Push:        s.Pushed != nil,
		},
	}
	s.writeJSON(w, http.StatusOK, st)
}

// handleEstimate serves the last published estimate, or 204 when there is none fresh.
func (s *WebDaemon) handleEstimate(w http.ResponseWriter, r *http.Request) {
	est, ok := s.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, est)
}

// handleRaw serves the last fix as received, accepted or not.
func (s *WebDaemon) handleRaw(w http.ResponseWriter, r *http.Request) {
	raw := s.Engine.Raw()
	if raw == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusOK, raw)
}

func (s *WebDaemon) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Start(); err != nil {
		s.logger.Error("Failed to start tracking", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Engine.Status())
}

func (s *WebDaemon) handleStop(w http.ResponseWriter, r *http.Request) {
	s.Engine.Stop()
	s.writeJSON(w, http.StatusOK, s.Engine.Status())
}

func (s *WebDaemon) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	err := s.Engine.RequestRecalibration()
	if errors.Is(err, fusion.ErrNotTracking) || errors.Is(err, fusion.ErrMotionUnavailable) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type pushResult struct {
	Geo       int `json:"geo"`
	Motion    int `json:"motion"`
	Dropped   int `json:"dropped"`
	Duplicate int `json:"duplicate"`
	Invalid   int `json:"invalid"`
}

// handlePush accepts ndjson session records, as recorded by a phone, and feeds
// them to the engine through the pushed source.
// Records arriving while the engine is idle are dropped.
func (s *WebDaemon) handlePush(w http.ResponseWriter, r *http.Request) {
	if s.Pushed == nil {
		http.Error(w, "Push is not enabled", http.StatusNotFound)
		return
	}
	if r.Body == nil {
		http.Error(w, "Please send a request body", http.StatusBadRequest)
		return
	}

	res := pushResult{}
	records, errs := stream.ScanRecords(r.Body, r.Context().Done())
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				if errs != nil {
					for err := range errs {
						s.countPushErr(&res, err)
					}
				}
				s.writeJSON(w, http.StatusOK, res)
				return
			}
			s.pushRecord(&res, rec)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.countPushErr(&res, err)
		}
	}
}

func (s *WebDaemon) countPushErr(res *pushResult, err error) {
	res.Invalid++
	s.logger.Warn("Invalid pushed record", "error", err)
}

func (s *WebDaemon) pushRecord(res *pushResult, rec types.Record) {
	// Only records that could reach the engine are remembered, so a batch
	// dropped while idle can be resent.
	if s.Engine.IsTracking() && !s.dedupe(rec) {
		res.Duplicate++
		return
	}
	switch rec.Kind {
	case types.RecordGeo:
		if s.Pushed.PushFix(*rec.Geo) == 0 {
			res.Dropped++
			return
		}
		res.Geo++
	case types.RecordMotion:
		if s.Pushed.PushMotion(*rec.Motion) == 0 {
			res.Dropped++
			return
		}
		res.Motion++
	case types.RecordError:
		err := fusion.ErrorFromCode(rec.ErrorCode)
		if errors.Is(err, fusion.ErrMotionUnavailable) {
			s.Pushed.FailMotion(err)
		} else {
			s.Pushed.FailPositions(err)
		}
	}
}

func (s *WebDaemon) writeJSON(w http.ResponseWriter, status int, v any) {
	j, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(j); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
