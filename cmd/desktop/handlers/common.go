// Package handlers provides REST API handlers for the desktop companion
// server. Writes are optimistic: they land in the local mirror first and a
// queued operation carries them to the server on the next sync pass.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/fintrack-app/fintrack/backend/internal/errors"
)

func decodeBody(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.ErrNotFound, apperrors.ErrOpNotFound:
		status = http.StatusNotFound
	case apperrors.ErrInvalid, apperrors.ErrValidation, apperrors.ErrMalformedPayload:
		status = http.StatusBadRequest
	case apperrors.ErrDuplicate, apperrors.ErrDuplicateName:
		status = http.StatusConflict
	case apperrors.ErrSyncLocked, apperrors.ErrCircuitOpen:
		status = http.StatusLocked
	case apperrors.ErrSyncOffline:
		status = http.StatusServiceUnavailable
	case apperrors.ErrStorageExhausted:
		status = http.StatusInsufficientStorage
	}
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(apperrors.CodeOf(err)),
	})
}
