// internal/handlers/api_server.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/models"
	"github.com/squadsync/squadsync/internal/service"
)

// APIServer holds the service facade and logger shared by all handlers.
type APIServer struct {
	Service *service.Service
	Logger  *logrus.Logger
}

// NewAPIServer builds the handler set over a service.
func NewAPIServer(svc *service.Service, logger *logrus.Logger) *APIServer {
	return &APIServer{Service: svc, Logger: logger}
}

// HealthHandler reports liveness.
func (s *APIServer) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the core error taxonomy onto HTTP statuses.
func (s *APIServer) writeError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case models.IsTransient(err):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
	default:
		s.Logger.WithField("error", err).Error("unhandled request error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
