package server

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jazzify/rhythmcore/internal/database"
	"github.com/jazzify/rhythmcore/internal/handler/health"
	"github.com/jazzify/rhythmcore/internal/leaderboard"
	"github.com/jazzify/rhythmcore/internal/migrations"
	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/session"
	"github.com/jazzify/rhythmcore/internal/stage"
)

const adminToken = "let-me-edit"

type testEnv struct {
	handler  http.Handler
	db       *sql.DB
	store    *stage.Store
	sessions *session.Registry
	clocks   chan *rhythm.ManualClock
}

func oneLife() stage.Stage {
	return stage.Stage{
		ID:            "one-life",
		Number:        "0-1",
		Name:          "One life",
		Mode:          stage.ModeRandom,
		BPM:           120,
		TimeSignature: 4,
		LoopMeasures:  4,
		AllowedChords: []string{"C", "F", "G"},
		MaxHP:         1,
		EnemyCount:    1,
		EnemyHP:       5,
		MinDamage:     1,
		MaxDamage:     1,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(ctx, db, logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	store := stage.NewStore(db)
	if err := store.Put(ctx, oneLife()); err != nil {
		t.Fatalf("put stage: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing token: %v", err)
	}

	env := &testEnv{db: db, store: store, clocks: make(chan *rhythm.ManualClock, 8)}
	board := leaderboard.New(nil)
	env.sessions = session.NewRegistry(store, store, board, session.NewBroker(), session.Options{
		Windows: stage.Windows{Tick: time.Millisecond},
		Clock: func() rhythm.Clock {
			c := rhythm.NewManualClock()
			env.clocks <- c
			return c
		},
		StateDelay: time.Millisecond,
		Seed:       3,
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		env.sessions.Shutdown(ctx)
	})

	env.handler = NewHandler(logger, Deps{
		Stages:      store,
		Sessions:    env.sessions,
		Leaderboard: board,
		Health: health.NewHandler(logger, map[string]health.Checker{
			"libsql": health.CheckerFunc(store.Ping),
		}).Routes(),
		AdminTokenHash: string(hash),
		CORSOrigins:    []string{"*"},
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func (e *testEnv) startSession(t *testing.T) (SessionResponse, *rhythm.ManualClock) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{StageID: "one-life", PlayerName: "ana"}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status %d, body %s", rec.Code, rec.Body)
	}
	return decode[SessionResponse](t, rec), <-e.clocks
}

func (e *testEnv) waitDone(t *testing.T, id string) {
	t.Helper()
	s, err := e.sessions.Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestStageRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stages", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	list := decode[[]StageSummary](t, rec)
	if len(list) != 1 || list[0].ID != "one-life" || list[0].ChordCount != 3 {
		t.Fatalf("list = %+v", list)
	}

	if rec := env.do(t, http.MethodGet, "/api/stages/one-life", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("get: status %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/stages/nope", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: status %d", rec.Code)
	}

	next := oneLife()
	next.ID = ""
	next.Name = "Two lives"
	next.MaxHP = 2

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		want   int
	}{
		{"put without token", http.MethodPut, "/api/stages/two-lives", next, "", http.StatusUnauthorized},
		{"put with wrong token", http.MethodPut, "/api/stages/two-lives", next, "guess", http.StatusUnauthorized},
		{"put", http.MethodPut, "/api/stages/two-lives", next, adminToken, http.StatusOK},
		{"put invalid", http.MethodPut, "/api/stages/bad", stage.Stage{Mode: stage.ModeRandom, BPM: 20}, adminToken, http.StatusBadRequest},
		{"put mismatched id", http.MethodPut, "/api/stages/other", oneLife(), adminToken, http.StatusBadRequest},
		{"delete without token", http.MethodDelete, "/api/stages/two-lives", nil, "", http.StatusUnauthorized},
		{"delete", http.MethodDelete, "/api/stages/two-lives", nil, adminToken, http.StatusNoContent},
		{"delete missing", http.MethodDelete, "/api/stages/two-lives", nil, adminToken, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body, tt.token)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestAdminDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.handler = NewHandler(slog.New(slog.DiscardHandler), Deps{Stages: env.store, Sessions: env.sessions})

	rec := env.do(t, http.MethodDelete, "/api/stages/one-life", nil, adminToken)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestCreateSessionRejects(t *testing.T) {
	env := newTestEnv(t)

	// A stored definition that no longer validates must not start a game.
	_, err := env.db.Exec(`INSERT INTO stages (id, number, data) VALUES ('stale', '9-9', jsonb(?))`,
		`{"id":"stale","number":"9-9","mode":"random","bpm":10,"timeSignature":4,"loopMeasures":4,"allowedChords":["C"]}`)
	if err != nil {
		t.Fatalf("insert stale stage: %v", err)
	}

	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid stage", CreateSessionRequest{StageID: "stale", PlayerName: "ana"}, http.StatusBadRequest},
		{"unknown stage", CreateSessionRequest{StageID: "nope", PlayerName: "ana"}, http.StatusNotFound},
		{"missing stage", CreateSessionRequest{PlayerName: "ana"}, http.StatusBadRequest},
		{"missing player", CreateSessionRequest{StageID: "one-life"}, http.StatusBadRequest},
		{"unknown field", map[string]any{"stageId": "one-life", "playerName": "ana", "cheat": true}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/sessions", tt.body, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
	if n := len(env.sessions.List()); n != 0 {
		t.Errorf("rejected requests started %d sessions", n)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	created, clock := env.startSession(t)
	base := "/api/sessions/" + created.ID

	if created.StageID != "one-life" || created.Player != "ana" {
		t.Errorf("created = %+v", created.Info)
	}

	inputs := []struct {
		name string
		body InputRequest
		want int
	}{
		{"note on", InputRequest{Type: "note_on", Pitch: 60}, http.StatusAccepted},
		{"note off", InputRequest{Type: "note_off", Pitch: 60}, http.StatusAccepted},
		{"bad type", InputRequest{Type: "pedal", Pitch: 60}, http.StatusBadRequest},
		{"bad pitch", InputRequest{Type: "note_on", Pitch: 200}, http.StatusBadRequest},
	}
	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, base+"/input", tt.body, "")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	clock.Set(1)
	env.waitDone(t, created.ID)

	rec := env.do(t, http.MethodGet, base, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	got := decode[SessionResponse](t, rec)
	if got.Result == nil || got.Result.Outcome != string(rhythm.PhaseGameOver) {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.State.PlayerHP != 0 {
		t.Errorf("player hp = %d, want 0", got.State.PlayerHP)
	}

	if rec := env.do(t, http.MethodPost, base+"/input", InputRequest{Type: "note_on", Pitch: 60}, ""); rec.Code != http.StatusConflict {
		t.Errorf("input after finish: status %d, want 409", rec.Code)
	}
	for range 2 {
		if rec := env.do(t, http.MethodDelete, base, nil, ""); rec.Code != http.StatusOK {
			t.Errorf("stop: status %d", rec.Code)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/stages/one-life/results", nil, "")
	results := decode[[]stage.Result](t, rec)
	if len(results) != 1 || results[0].SessionID != created.ID {
		t.Errorf("results = %+v", results)
	}

	rec = env.do(t, http.MethodGet, "/api/stages/one-life/leaderboard", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("leaderboard: status %d", rec.Code)
	}
	if lb := decode[LeaderboardResponse](t, rec); len(lb.Entries) != 0 {
		t.Errorf("disabled leaderboard returned %v", lb.Entries)
	}
	if rec := env.do(t, http.MethodGet, "/api/stages/one-life/results?limit=x", nil, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status %d", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/api/sessions/nope", nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: status %d", rec.Code)
	}
}

func TestDeleteStageWithRunningSession(t *testing.T) {
	env := newTestEnv(t)
	created, _ := env.startSession(t)

	rec := env.do(t, http.MethodDelete, "/api/stages/one-life", nil, adminToken)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	env.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil, "")
	rec = env.do(t, http.MethodDelete, "/api/stages/one-life", nil, adminToken)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status after stop = %d, want 204", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	created, clock := env.startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/sessions/"+created.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	// The stream is open once headers arrive, so moving time now is seen.
	clock.Set(1)

	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 || names[len(names)-1] != session.EventFinished {
		t.Fatalf("events = %v, want a trailing %q", names, session.EventFinished)
	}
	for _, want := range []string{session.EventFail, session.EventGameOver} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Errorf("events = %v, missing %q", names, want)
		}
	}
}

func TestEventStreamAfterFinish(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	created, _ := env.startSession(t)
	env.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil, "")

	resp, err := http.Get(srv.URL + "/api/sessions/" + created.ID + "/events")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "event: finished") {
		t.Errorf("late subscriber got %q", body)
	}
}
