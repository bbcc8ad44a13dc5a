package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/types"
)

// errorBody is the inner error object of every failure response.
type errorBody struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

// errorEnvelope is the uniform failure response: the error itself plus the
// correlation id and server time.
type errorEnvelope struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id"`
	Timestamp string    `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps an engine error to its HTTP status and envelope. Internal
// faults get a generic message; the detail stays in the server log keyed by
// request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := types.KindOf(err)
	status := types.HTTPStatus(kind)

	message := err.Error()
	var appErr *types.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if kind == types.KindInternal {
		message = "internal error"
		s.log.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
	}

	s.writeJSON(w, status, errorEnvelope{
		Error: errorBody{
			Type:    string(kind),
			Message: message,
			Code:    types.CodeOf(err),
			Details: map[string]any{},
		},
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
