package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/robohub-inference/internal/domain/session/ports"
	"github.com/ManuGH/robohub-inference/internal/domain/session/store"
	"github.com/ManuGH/robohub-inference/internal/log"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ports.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ports.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ports.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error(), RequestID: log.RequestIDFromContext(r.Context())})
}
