package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/types"
	"github.com/causalmem/causalmem/internal/version"
)

type addEventRequest struct {
	EffectText string `json:"effect_text"`
}

type addEventResponse struct {
	EventID int64 `json:"event_id"`
	Success bool  `json:"success"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Narrative string `json:"narrative"`
	Success   bool   `json:"success"`
}

type healthResponse struct {
	Status            string `json:"status"`
	Version           string `json:"version"`
	DatabaseConnected bool   `json:"database_connected"`
}

// handleRoot serves the service banner with the endpoint map.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":        "causalmem",
		"version":     version.Version,
		"description": "causal event memory service",
		"endpoints": map[string]string{
			"health":    "/health",
			"add_event": "/events (POST)",
			"query":     "/query (POST)",
			"stats":     "/stats",
		},
	})
}

// handleHealth reports liveness; an unreachable store degrades the status
// and the HTTP code so load balancers can eject the instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.memory.Ping(r.Context()) == nil
	status := http.StatusOK
	body := healthResponse{Status: "healthy", Version: version.Version, DatabaseConnected: true}
	if !connected {
		status = http.StatusServiceUnavailable
		body.Status = "unhealthy"
		body.DatabaseConnected = false
	}
	s.writeJSON(w, status, body)
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var req addEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, types.NewValidation("invalid_json", "request body must be valid JSON"))
		return
	}

	id, err := s.memory.AddEvent(r.Context(), req.EffectText)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("event added",
		zap.Int64("event_id", id),
		zap.String("request_id", RequestID(r.Context())))
	s.writeJSON(w, http.StatusOK, addEventResponse{EventID: id, Success: true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, types.NewValidation("invalid_json", "request body must be valid JSON"))
		return
	}

	narrative, err := s.memory.Query(r.Context(), req.Query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, queryResponse{Narrative: narrative, Success: true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.memory.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}
