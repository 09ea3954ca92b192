package session

import (
	"encoding/json"
	"sync"

	"github.com/jazzify/rhythmcore/internal/rhythm"
)

const (
	EventSpawn         = "spawn"
	EventSuccess       = "success"
	EventFail          = "fail"
	EventEnemyDefeated = "enemy_defeated"
	EventCleared       = "cleared"
	EventGameOver      = "game_over"
	EventState         = "state"
	EventFinished      = "finished"
)

// Event is the payload published to a session's subscribers.
type Event struct {
	Type    string           `json:"type"`
	Session string           `json:"session"`
	Target  string           `json:"target,omitempty"`
	Event   *rhythm.Event    `json:"event,omitempty"`
	Result  *rhythm.Result   `json:"result,omitempty"`
	State   *rhythm.Snapshot `json:"state,omitempty"`
}

// Broker is an in-process pub/sub keyed by session ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel of JSON-encoded events for the session. The
// channel is closed when the session's topic is closed.
func (b *Broker) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []byte]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.subs[sessionID][ch]; ok {
		delete(b.subs[sessionID], ch)
		close(ch)
	}
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Publish sends an event to every subscriber of the session. Slow
// subscribers miss events rather than hold up the game.
func (b *Broker) Publish(sessionID string, event Event) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs[sessionID] {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.RUnlock()
}

// CloseTopic closes every subscriber channel of the session.
func (b *Broker) CloseTopic(sessionID string) {
	b.mu.Lock()
	for ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
	b.mu.Unlock()
}

// Subscribers counts the open subscriptions of a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
