package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jazzify/rhythmcore/internal/audio"
	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/stage"
)

type StageSource interface {
	Get(ctx context.Context, id string) (stage.Stage, error)
}

type ResultSink interface {
	RecordResult(ctx context.Context, r stage.Result) error
}

type Scoreboard interface {
	Submit(ctx context.Context, stageID, player string, score int) error
}

type Options struct {
	Windows stage.Windows
	// Output plays backing tracks and clocks the game. Nil runs every
	// session on the software clock.
	Output audio.Output
	// Clock overrides the game clock. Tests use it to drive time by hand.
	Clock func() rhythm.Clock
	// Retention is how long a finished session stays readable.
	Retention time.Duration
	// StateDelay coalesces state events.
	StateDelay time.Duration
	Seed       uint64
}

// Registry owns every live session.
type Registry struct {
	stages  StageSource
	results ResultSink
	board   Scoreboard
	broker  *Broker
	opts    Options
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

func NewRegistry(stages StageSource, results ResultSink, board Scoreboard, broker *Broker, opts Options, logger *slog.Logger) *Registry {
	if opts.Retention <= 0 {
		opts.Retention = 10 * time.Minute
	}
	if opts.StateDelay <= 0 {
		opts.StateDelay = 50 * time.Millisecond
	}
	return &Registry{
		stages:   stages,
		results:  results,
		board:    board,
		broker:   broker,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Broker() *Broker { return r.broker }

// Start loads a stage, validates it and launches a session for player.
func (r *Registry) Start(ctx context.Context, stageID, player string) (*Session, error) {
	player = strings.TrimSpace(player)
	if player == "" {
		return nil, ErrNoPlayer
	}
	st, err := r.stages.Get(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrShutdown
	}

	id := uuid.NewString()
	logger := r.logger.With("session", id, "stage", st.ID, "player", player)

	seed := r.opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, uint64(len(r.sessions))))

	s := &Session{
		ID:        id,
		Stage:     st,
		Player:    player,
		StartedAt: time.Now().UTC(),
		inputs:    make(chan rhythm.Input, inputBuffer),
		broker:    r.broker,
		logger:    logger,
		done:      make(chan struct{}),
	}

	var clock rhythm.Clock
	switch {
	case r.opts.Clock != nil:
		clock = r.opts.Clock()
	case r.opts.Output != nil:
		s.audio = audio.NewPlayer(r.opts.Output, logger)
		clock = s.audio.Clock()
	default:
		clock = rhythm.NewSoftwareClock()
	}

	cfg := st.EngineConfig(r.opts.Windows, rng)
	s.mgr = rhythm.NewManager(cfg, st.Generator(rng), clock, s.hooks(r.opts.StateDelay), logger)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	r.sessions[id] = s
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		s.run(runCtx, r.finish)
	}()

	logger.Info("session started", "mode", st.Mode, "bpm", st.BPM, "clock_degraded", clock.Degraded())
	return s, nil
}

// finish persists a result and schedules the session for removal.
func (r *Registry) finish(s *Session, res stage.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.results != nil {
		if err := r.results.RecordResult(ctx, res); err != nil {
			s.logger.Error("recording result", "error", err)
		}
	}
	if r.board != nil && res.Outcome == string(rhythm.PhaseCleared) {
		if err := r.board.Submit(ctx, res.StageID, res.Player, res.Score); err != nil {
			s.logger.Warn("submitting score", "error", err)
		}
	}

	time.AfterFunc(r.opts.Retention, func() {
		r.mu.Lock()
		if r.sessions[s.ID] == s {
			delete(r.sessions, s.ID)
		}
		r.mu.Unlock()
	})
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the known sessions, newest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Info())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int { return b.StartedAt.Compare(a.StartedAt) })
	return out
}

// Stop ends one session.
func (r *Registry) Stop(id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.Stop()
	return nil
}

// Shutdown stops every session and waits for them, or for ctx.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.stopOnce.Do(s.cancel)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("sessions stopped", "count", len(live))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions: %w", errors.Join(ctx.Err(), ErrShutdown))
	}
}
