package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/jazzify/rhythmcore/internal/session"
)

// originPatterns turns CORS origins into the host patterns the WebSocket
// handshake checks the Origin header against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		out = append(out, o)
	}
	return out
}

// handleWS accepts note input as InputRequest JSON messages and pushes the
// session's events back on the same connection.
func handleWS(logger *slog.Logger, broker *session.Broker, origins []string) http.HandlerFunc {
	accept := &websocket.AcceptOptions{OriginPatterns: originPatterns(origins)}
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		ch := broker.Subscribe(s.ID)
		defer broker.Unsubscribe(s.ID, ch)

		conn, err := websocket.Accept(w, r, accept)
		if err != nil {
			logger.Warn("websocket accept failed", "origin", r.Header.Get("Origin"), "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go func() {
			defer cancel()
			for {
				var req InputRequest
				if err := wsjson.Read(ctx, conn, &req); err != nil {
					logger.Debug("websocket read ended", "session", s.ID, "error", err)
					return
				}
				if err := applyInput(s, req); err != nil {
					if errors.Is(err, session.ErrFinished) {
						return
					}
					wsjson.Write(ctx, conn, ErrorResponse{Error: err.Error()})
				}
			}
		}()

		emit := func(data []byte) error {
			return conn.Write(ctx, websocket.MessageText, data)
		}
		if err := follow(ctx, s, ch, emit, nil); err != nil {
			logger.Debug("websocket stream ended", "session", s.ID, "error", err)
			return
		}
		conn.Close(websocket.StatusNormalClosure, "session finished")
	}
}
