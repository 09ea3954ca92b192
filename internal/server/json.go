package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jazzify/rhythmcore/internal/session"
	"github.com/jazzify/rhythmcore/internal/stage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps package sentinels onto HTTP statuses. Anything
// unrecognised is a 500 and its text stays in the logs.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, stage.ErrNotFound), errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, stage.ErrInvalid), errors.Is(err, session.ErrBadPitch), errors.Is(err, session.ErrNoPlayer),
		errors.Is(err, errBadInputType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrFinished):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, session.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
