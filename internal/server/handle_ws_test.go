package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jazzify/rhythmcore/internal/leaderboard"
	"github.com/jazzify/rhythmcore/internal/session"
)

func TestSessionWebSocket(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	created, clock := env.startSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + created.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// A rejected input is answered on the socket.
	if err := wsjson.Write(ctx, conn, InputRequest{Type: "note_on", Pitch: -4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for {
		var msg struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Error != "" {
			if !strings.Contains(msg.Error, "pitch") {
				t.Errorf("error reply = %q", msg.Error)
			}
			break
		}
	}

	clock.Set(1)

	var types []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("read: %v", err)
			}
			break
		}
		var e session.Event
		if err := json.Unmarshal(data, &e); err != nil {
			t.Fatalf("decoding %s: %v", data, err)
		}
		types = append(types, e.Type)
	}
	if len(types) == 0 || types[len(types)-1] != session.EventFinished {
		t.Fatalf("events = %v, want a trailing %q", types, session.EventFinished)
	}
	if ctx.Err() != nil {
		t.Errorf("stream outlived the session: %v", ctx.Err())
	}
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origins []string
		want    []string
	}{
		{nil, nil},
		{[]string{"*"}, []string{"*"}},
		{[]string{"https://app.example", " http://localhost:5173 ", ""}, []string{"app.example", "localhost:5173"}},
		{[]string{"*.example.com"}, []string{"*.example.com"}},
	}
	for _, tt := range tests {
		if got := originPatterns(tt.origins); !slices.Equal(got, tt.want) {
			t.Errorf("originPatterns(%q) = %q, want %q", tt.origins, got, tt.want)
		}
	}
}

func TestSessionWebSocketOrigin(t *testing.T) {
	env := newTestEnv(t)
	handler := NewHandler(slog.New(slog.DiscardHandler), Deps{
		Stages:      env.store,
		Sessions:    env.sessions,
		Leaderboard: leaderboard.New(nil),
		CORSOrigins: []string{"https://app.example"},
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()

	created, _ := env.startSession(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + created.ID + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func(origin string) (*websocket.Conn, *http.Response, error) {
		return websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
	}

	_, resp, err := dial("https://evil.example")
	if err == nil {
		t.Fatal("dial from a foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign origin response = %v, want 403", resp)
	}

	conn, _, err := dial("https://app.example")
	if err != nil {
		t.Fatalf("dial from an allowed origin: %v", err)
	}
	conn.CloseNow()
}
