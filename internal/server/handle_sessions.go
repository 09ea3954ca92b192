package server

import (
	"errors"
	"net/http"

	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/session"
	"github.com/jazzify/rhythmcore/internal/stage"
)

type CreateSessionRequest struct {
	StageID    string `json:"stageId"`
	PlayerName string `json:"playerName"`
}

type SessionResponse struct {
	session.Info
	State  rhythm.Snapshot `json:"state"`
	Result *stage.Result   `json:"result,omitempty"`
}

type InputRequest struct {
	Type  string `json:"type"`
	Pitch int    `json:"pitch"`
}

var errBadInputType = errors.New(`type must be "note_on" or "note_off"`)

const (
	inputNoteOn  = "note_on"
	inputNoteOff = "note_off"
)

func sessionResponse(s *session.Session) SessionResponse {
	resp := SessionResponse{Info: s.Info(), State: s.Snapshot()}
	if res, ok := s.Result(); ok {
		resp.Result = &res
	}
	return resp
}

func handleListSessions(sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessions.List())
	}
}

func handleCreateSession(sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.StageID == "" {
			writeError(w, http.StatusBadRequest, "stageId is required")
			return
		}
		s, err := sessions.Start(r.Context(), req.StageID, req.PlayerName)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sessionResponse(s))
	}
}

func handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionResponse(sessionFrom(r)))
	}
}

// handleStopSession ends the game. Stopping a finished session is a no-op.
func handleStopSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		s.Stop()
		writeJSON(w, http.StatusOK, sessionResponse(s))
	}
}

func applyInput(s *session.Session, req InputRequest) error {
	switch req.Type {
	case inputNoteOn:
		return s.Input(true, req.Pitch)
	case inputNoteOff:
		return s.Input(false, req.Pitch)
	default:
		return errBadInputType
	}
}

func handleInput() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InputRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := applyInput(sessionFrom(r), req); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
