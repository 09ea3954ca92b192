// Package session hosts running games. Every session owns one rhythm.Manager
// and drives it from a dedicated goroutine; callers only reach the game
// through the session's input channel and its published events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/jazzify/rhythmcore/internal/audio"
	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/stage"
)

var (
	ErrFinished  = errors.New("session finished")
	ErrBusy      = errors.New("input queue full")
	ErrBadPitch  = errors.New("pitch must be between 0 and 127")
	ErrNotFound  = errors.New("session not found")
	ErrShutdown  = errors.New("registry shut down")
	ErrNoPlayer  = errors.New("player name is required")
)

const inputBuffer = 256

// Info summarises a session for listings.
type Info struct {
	ID        string       `json:"id"`
	StageID   string       `json:"stageId"`
	Player    string       `json:"player"`
	StartedAt time.Time    `json:"startedAt"`
	Phase     rhythm.Phase `json:"phase"`
	Score     int          `json:"score"`
}

type Session struct {
	ID        string
	Stage     stage.Stage
	Player    string
	StartedAt time.Time

	mgr    *rhythm.Manager
	inputs chan rhythm.Input
	audio  *audio.Player
	broker *Broker
	logger *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	result *stage.Result
}

// Input queues a note for the game. It never blocks.
func (s *Session) Input(on bool, pitch int) error {
	if pitch < 0 || pitch > 127 {
		return ErrBadPitch
	}
	select {
	case <-s.done:
		return ErrFinished
	default:
	}
	select {
	case s.inputs <- rhythm.Input{On: on, Pitch: pitch}:
		return nil
	default:
		return ErrBusy
	}
}

// Stop ends the game and waits for the session goroutine to exit. It is
// safe to call more than once and after the game ended by itself.
func (s *Session) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Snapshot() rhythm.Snapshot { return s.mgr.Snapshot() }

// Result is available once the session is done.
func (s *Session) Result() (stage.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return stage.Result{}, false
	}
	return *s.result, true
}

func (s *Session) Info() Info {
	snap := s.Snapshot()
	return Info{
		ID:        s.ID,
		StageID:   s.Stage.ID,
		Player:    s.Player,
		StartedAt: s.StartedAt,
		Phase:     snap.Phase,
		Score:     snap.Stats.Score,
	}
}

func (s *Session) publish(e Event) {
	e.Session = s.ID
	s.broker.Publish(s.ID, e)
}

// hooks wires game callbacks to the broker. State snapshots are coalesced so
// a burst of outcomes produces one state event.
func (s *Session) hooks(stateDelay time.Duration) rhythm.Hooks {
	debounced := debounce.New(stateDelay)
	changed := func() {
		debounced(func() {
			snap := s.mgr.Snapshot()
			s.publish(Event{Type: EventState, State: &snap})
		})
	}
	return rhythm.Hooks{
		OnQuestionSpawn: func(ev rhythm.Event) {
			s.publish(Event{Type: EventSpawn, Event: &ev})
			changed()
		},
		OnAttackSuccess: func(target, _ string, r rhythm.Result) {
			s.publish(Event{Type: EventSuccess, Target: target, Result: &r})
			changed()
		},
		OnAttackFail: func(target, _ string, r rhythm.Result) {
			s.publish(Event{Type: EventFail, Target: target, Result: &r})
			changed()
		},
		OnEnemyDefeated: func(target string) {
			s.publish(Event{Type: EventEnemyDefeated, Target: target})
		},
		OnAllEnemiesDefeated: func() {
			s.publish(Event{Type: EventCleared})
		},
		OnGameOver: func() {
			s.publish(Event{Type: EventGameOver})
		},
	}
}

// run is the session goroutine. It is the only caller of the Manager.
func (s *Session) run(ctx context.Context, finish func(*Session, stage.Result)) {
	defer close(s.done)

	// The device clock only moves while the track plays, so playback must be
	// running before the game starts on it.
	if s.audio != nil {
		err := s.audio.LoadAndPlay(ctx, s.Stage.MP3URL, audio.Options{
			BPM:             s.Stage.BPM,
			TimeSignature:   s.Stage.TimeSignature,
			MeasureCount:    s.Stage.LoopMeasures,
			CountInMeasures: s.Stage.CountInMeasures,
		})
		if err != nil {
			s.logger.Warn("backing track failed to start, using the software clock", "error", err)
			s.audio = nil
			s.mgr.UseClock(rhythm.NewSoftwareClock())
		}
	}

	s.mgr.Start()
	if err := s.mgr.Run(ctx, s.inputs); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("game loop ended", "error", err)
	}
	if s.audio != nil {
		if err := s.audio.Stop(); err != nil {
			s.logger.Warn("stopping backing track", "error", err)
		}
	}

	snap := s.mgr.Snapshot()
	res := stage.Result{
		SessionID:  s.ID,
		StageID:    s.Stage.ID,
		Player:     s.Player,
		Outcome:    string(snap.Phase),
		Perfect:    snap.Stats.Perfect,
		Early:      snap.Stats.Early,
		Late:       snap.Stats.Late,
		Misses:     snap.Stats.Misses,
		MaxCombo:   snap.Stats.MaxCombo,
		Score:      snap.Stats.Score,
		FinishedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.result = &res
	s.mu.Unlock()

	s.logger.Info("session finished", "outcome", res.Outcome, "score", res.Score)
	s.publish(Event{Type: EventFinished, State: &snap})
	finish(s, res)
	s.broker.CloseTopic(s.ID)
}
