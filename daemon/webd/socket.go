package webd

import (
	"encoding/json"
	"github.com/olahol/melody"
	"github.com/rotblauer/velofuse/types/estimate"
)

type websocketAction string

var (
	websocketActionEstimate websocketAction = "estimate"
	websocketActionError    websocketAction = "error"
)

type broadcast struct {
	Action   websocketAction         `json:"action"`
	Estimate *estimate.FusedEstimate `json:"estimate,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

func newEstimateMessage(est estimate.FusedEstimate) broadcast {
	return broadcast{Action: websocketActionEstimate, Estimate: &est}
}

func newErrorMessage(err error) broadcast {
	return broadcast{Action: websocketActionError, Error: err.Error()}
}

// initMelody sets up the websocket handler.
func (s *WebDaemon) initMelody() {
	s.melodyInstance = melody.New()

	// New clients get the latest fresh estimate right away.
	s.melodyInstance.HandleConnect(func(sess *melody.Session) {
		s.logger.Info("Websocket connected", "remote", sess.Request.RemoteAddr)
		est, ok := s.Latest()
		if !ok {
			return
		}
		b, err := json.Marshal(newEstimateMessage(est))
		if err != nil {
			return
		}
		if err := sess.Write(b); err != nil {
			s.logger.Warn("Websocket write", "error", err)
		}
	})

	// Clients only listen. Log and drop.
	s.melodyInstance.HandleMessage(func(sess *melody.Session, msg []byte) {
		s.logger.Debug("Websocket message", "remote", sess.Request.RemoteAddr, "message", string(msg))
	})

	s.melodyInstance.HandleDisconnect(func(sess *melody.Session) {
		s.logger.Info("Websocket disconnected", "remote", sess.Request.RemoteAddr)
	})

	s.melodyInstance.HandleError(func(sess *melody.Session, e error) {
		s.logger.Warn("Websocket error", "error", e, "remote", sess.Request.RemoteAddr)
	})
}

func (s *WebDaemon) broadcast(msg broadcast) {
	if s.melodyInstance == nil {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal broadcast", "error", err)
		return
	}
	if err := s.melodyInstance.Broadcast(b); err != nil {
		s.logger.Warn("Failed to broadcast", "action", msg.Action, "error", err)
	}
}
