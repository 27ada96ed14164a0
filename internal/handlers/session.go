// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/models"
)

// sessionIDFromPath extracts the session UUID from paths shaped like
// /sessions/{id}/<op>.
func sessionIDFromPath(r *http.Request, op string) (uuid.UUID, bool) {
	path := strings.TrimPrefix(r.URL.Path, "/sessions/")
	path = strings.TrimSuffix(path, "/"+op)
	id, err := uuid.Parse(path)
	return id, err == nil
}

type rsvpRequest struct {
	UserID   uuid.UUID       `json:"user_id"`
	Response models.Response `json:"response"`
	SourceID string          `json:"source_id"`
}

// RSVPHandler handles POST and DELETE /sessions/{id}/rsvp. DELETE tombstones
// the caller's response rather than erasing it.
func (s *APIServer) RSVPHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, ok := sessionIDFromPath(r, "rsvp")
	if !ok {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req rsvpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID == uuid.Nil {
		s.writeError(w, &models.ValidationError{Field: "user_id", Value: ""})
		return
	}
	if req.SourceID == "" {
		// Distinct devices must carry distinct source ids for the clock-race
		// tie-break; fall back to the remote address.
		req.SourceID = r.RemoteAddr
	}

	var (
		rec models.AttendanceRecord
		err error
	)
	if r.Method == http.MethodDelete {
		rec, err = s.Service.WithdrawRSVP(r.Context(), sessionID, req.UserID, req.SourceID)
	} else {
		rec, err = s.Service.SubmitRSVP(r.Context(), sessionID, req.UserID, req.Response, req.SourceID)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RosterHandler handles GET /sessions/{id}/roster.
func (s *APIServer) RosterHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(r, "roster")
	if !ok {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	rosterView, err := s.Service.GetMergedRoster(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"roster":     rosterView,
	})
}

// RiskHandler handles GET /sessions/{id}/risk.
func (s *APIServer) RiskHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(r, "risk")
	if !ok {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	risk, err := s.Service.PredictSession(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, risk)
}

// CompleteHandler handles GET /sessions/{id}/complete.
func (s *APIServer) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFromPath(r, "complete")
	if !ok {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	complete, err := s.Service.IsSessionComplete(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"complete":   complete,
	})
}

type outcomesRequest struct {
	Attended map[uuid.UUID]bool `json:"attended"`
}

// OutcomesHandler handles POST /sessions/{id}/outcomes, the completion driver
// that feeds ground-truth attendance into the reliability scorer.
func (s *APIServer) OutcomesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID, ok := sessionIDFromPath(r, "outcomes")
	if !ok {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	var req outcomesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := s.Service.RecordSessionOutcomes(r.Context(), sessionID, req.Attended); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"recorded":   len(req.Attended),
	})
}

// LeadersHandler handles GET /squads/{id}/leaders.
func (s *APIServer) LeadersHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/squads/")
	path = strings.TrimSuffix(path, "/leaders")
	squadID, err := uuid.Parse(path)
	if err != nil {
		http.Error(w, "invalid squad id", http.StatusBadRequest)
		return
	}
	board, err := s.Service.RankLeaders(r.Context(), squadID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
