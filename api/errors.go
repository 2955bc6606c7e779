package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/sessionstore/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidSession):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrCorruptRecord):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
