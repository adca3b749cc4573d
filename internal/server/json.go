package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/playperu/riftbound/internal/arcade"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps the arcade error kinds to status codes. Anything
// unclassified is logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, arcade.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, arcade.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, arcade.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, arcade.ErrUnauthorized):
		status = http.StatusUnauthorized
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
