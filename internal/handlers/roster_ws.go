// internal/handlers/roster_ws.go
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RosterWSHandler streams a session's merged roster over a WebSocket at
// /sessions/ws/{id}. The client receives the current snapshot on connect and
// an update for every applied record change afterwards; it never sends
// anything except control frames.
func (s *APIServer) RosterWSHandler(w http.ResponseWriter, r *http.Request) {
	sessionIDStr := strings.TrimPrefix(r.URL.Path, "/sessions/ws/")
	sessionID, err := uuid.Parse(sessionIDStr)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"roster"},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.Logger.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != "roster" {
		c.Close(websocket.StatusPolicyViolation, "client must speak the roster subprotocol")
		return
	}

	obs, agg, err := s.Service.ObserveRoster(r.Context(), sessionID)
	if err != nil {
		c.Close(websocket.StatusPolicyViolation, "unknown session")
		return
	}
	defer agg.Unobserve(obs)

	s.Logger.WithFields(logrus.Fields{
		"session": sessionID,
		"remote":  r.RemoteAddr,
	}).Info("roster observer connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain incoming frames so pings are answered and closes are noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "session context done")
			return
		case update, ok := <-obs.C:
			if !ok {
				c.Close(websocket.StatusGoingAway, "observer detached")
				return
			}
			if err := wsjson.Write(ctx, c, update); err != nil {
				s.Logger.WithFields(logrus.Fields{
					"session": sessionID,
					"error":   err,
				}).Debug("roster observer write failed, disconnecting")
				return
			}
		}
	}
}
