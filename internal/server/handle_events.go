package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jazzify/rhythmcore/internal/session"
)

// follow forwards events from a subscription to emit until the session ends,
// ctx is done or emit fails. A subscriber that joined after the session
// finished still receives a closing "finished" event.
func follow(ctx context.Context, s *session.Session, ch chan []byte, emit func([]byte) error, ping func() error) error {
	var tick <-chan time.Time
	if ping != nil {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := emit(data); err != nil {
				return err
			}
		case <-s.Done():
			return drain(ch, s, emit)
		case <-tick:
			if err := ping(); err != nil {
				return err
			}
		}
	}
}

func drain(ch chan []byte, s *session.Session, emit func([]byte) error) error {
	for {
		select {
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := emit(data); err != nil {
				return err
			}
		default:
			snap := s.Snapshot()
			data, _ := json.Marshal(session.Event{Type: session.EventFinished, Session: s.ID, State: &snap})
			return emit(data)
		}
	}
}

func eventType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &head) != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}

func handleEvents(broker *session.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		ch := broker.Subscribe(s.ID)
		defer broker.Unsubscribe(s.ID, ch)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		emit := func(data []byte) error {
			_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType(data), data)
			flusher.Flush()
			return err
		}
		ping := func() error {
			_, err := fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
			return err
		}
		follow(r.Context(), s, ch, emit, ping)
	}
}
