package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/kidtask/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a workflow error kind to an HTTP status. The error
// string alone is enough for the caller to know nothing changed.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrIO):
		logger.Error("storage failure", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
