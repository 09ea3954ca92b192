package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jazzify/rhythmcore/internal/leaderboard"
	"github.com/jazzify/rhythmcore/internal/session"
	"github.com/jazzify/rhythmcore/internal/stage"
)

// StageSummary is one row of GET /api/stages.
type StageSummary struct {
	ID            string     `json:"id"`
	Number        string     `json:"number"`
	Name          string     `json:"name"`
	Mode          stage.Mode `json:"mode"`
	BPM           float64    `json:"bpm"`
	TimeSignature int        `json:"timeSignature"`
	ChordCount    int        `json:"chordCount"`
}

type LeaderboardResponse struct {
	StageID string              `json:"stageId"`
	Entries []leaderboard.Entry `json:"entries"`
}

func handleListStages(store StageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stages, err := store.List(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		out := make([]StageSummary, len(stages))
		for i, st := range stages {
			out[i] = StageSummary{
				ID:            st.ID,
				Number:        st.Number,
				Name:          st.Name,
				Mode:          st.Mode,
				BPM:           st.BPM,
				TimeSignature: st.TimeSignature,
				ChordCount:    len(st.Chords()),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetStage(store StageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := store.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handlePutStage(store StageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var st stage.Stage
		if err := readJSON(r, &st); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id := chi.URLParam(r, "id")
		if st.ID != "" && st.ID != id {
			writeError(w, http.StatusBadRequest, "stage id does not match the path")
			return
		}
		st.ID = id
		if err := store.Put(r.Context(), st); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleDeleteStage(store StageStore, sessions *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		for _, info := range sessions.List() {
			if info.StageID == id && !info.Phase.Finished() {
				writeError(w, http.StatusConflict, "stage has running sessions")
				return
			}
		}
		if err := store.Delete(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func limitParam(r *http.Request, def, maxN int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxN), nil
}

func handleStageResults(store StageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := limitParam(r, 20, 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := store.Get(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		results, err := store.ListResults(r.Context(), id, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleLeaderboard(store StageStore, board Leaderboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := limitParam(r, 10, 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := store.Get(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		entries := []leaderboard.Entry{}
		if board != nil {
			entries, err = board.Top(r.Context(), id, limit)
			if err != nil {
				writeError(w, http.StatusBadGateway, "leaderboard unavailable")
				return
			}
		}
		writeJSON(w, http.StatusOK, LeaderboardResponse{StageID: id, Entries: entries})
	}
}
