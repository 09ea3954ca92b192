package rhythm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

var ErrStopped = errors.New("session stopped")

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseCountIn  Phase = "count_in"
	PhasePlaying  Phase = "playing"
	PhaseCleared  Phase = "cleared"
	PhaseGameOver Phase = "game_over"
	PhaseStopped  Phase = "stopped"
)

// Finished reports whether the phase is terminal.
func (p Phase) Finished() bool {
	return p == PhaseCleared || p == PhaseGameOver || p == PhaseStopped
}

// Hooks are the callbacks into the game and UI layers. They run on the tick
// goroutine and must not block. Any of them may be nil.
type Hooks struct {
	OnQuestionSpawn      func(ev Event)
	OnAttackSuccess      func(targetID, chordID string, r Result)
	OnAttackFail         func(targetID, chordID string, r Result)
	OnEnemyDefeated      func(targetID string)
	OnAllEnemiesDefeated func()
	OnGameOver           func()
}

// Config is everything a Manager needs besides its collaborators.
type Config struct {
	Timing          Timing
	CountInMeasures int

	MaxHP      int
	EnemyCount int
	EnemyHP    int
	MinDamage  int
	MaxDamage  int

	JudgmentWindow time.Duration
	PerfectWindow  time.Duration
	TickInterval   time.Duration

	Resolver Resolver
	// Rand drives damage rolls. Nil means a time-seeded source.
	Rand *rand.Rand
}

func (c *Config) applyDefaults() {
	if c.MaxHP <= 0 {
		c.MaxHP = 5
	}
	if c.EnemyCount <= 0 {
		c.EnemyCount = 1
	}
	if c.EnemyHP <= 0 {
		c.EnemyHP = 5
	}
	if c.MinDamage <= 0 {
		c.MinDamage = 1
	}
	if c.MaxDamage < c.MinDamage {
		c.MaxDamage = c.MinDamage
	}
	if c.JudgmentWindow <= 0 {
		c.JudgmentWindow = DefaultJudgmentWindow
	}
	if c.PerfectWindow <= 0 {
		c.PerfectWindow = DefaultPerfectWindow
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 4 * time.Millisecond
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1))
	}
}

type EnemyState struct {
	ID    string `json:"id"`
	HP    int    `json:"hp"`
	MaxHP int    `json:"maxHp"`
}

func (e EnemyState) Defeated() bool { return e.HP <= 0 }

type Stats struct {
	Perfect  int `json:"perfect"`
	Early    int `json:"early"`
	Late     int `json:"late"`
	Misses   int `json:"misses"`
	Combo    int `json:"combo"`
	MaxCombo int `json:"maxCombo"`
	Score    int `json:"score"`
}

func (s Stats) Judged() int { return s.Perfect + s.Early + s.Late + s.Misses }

// Snapshot is a read-only copy of the game state, safe to hand to other
// goroutines.
type Snapshot struct {
	Phase         Phase        `json:"phase"`
	Now           float64      `json:"now"`
	Loop          int          `json:"loop"`
	Playback      Playback     `json:"playback"`
	PlayerHP      int          `json:"playerHp"`
	MaxHP         int          `json:"maxHp"`
	Enemies       []EnemyState `json:"enemies"`
	Current       *Event       `json:"current,omitempty"`
	Stats         Stats        `json:"stats"`
	ClockDegraded bool         `json:"clockDegraded"`
}

const (
	pointsPerfect = 100
	pointsGood    = 50
)

// Manager runs the frame loop: it reads the clock, spawns due events, feeds
// the judge and applies the judge's outcomes to player and enemies.
//
// All methods except Snapshot must be called from the goroutine that ticks.
type Manager struct {
	cfg    Config
	clock  Clock
	sched  *Scheduler
	judge  *Judge
	hooks  Hooks
	logger *slog.Logger

	playback Playback
	phase    Phase
	now      float64
	pending  []*Event
	playerHP int
	enemies  []EnemyState
	stats    Stats

	snap atomic.Pointer[Snapshot]
}

func NewManager(cfg Config, gen Generator, clock Clock, hooks Hooks, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:    cfg,
		clock:  clock,
		hooks:  hooks,
		logger: logger,
		phase:  PhaseIdle,
	}
	m.sched = NewScheduler(gen, cfg.Timing, logger)
	m.judge = NewJudge(JudgeConfig{
		Window:    cfg.JudgmentWindow,
		Perfect:   cfg.PerfectWindow,
		Resolver:  cfg.Resolver,
		OnSuccess: m.applySuccess,
		OnFail:    m.applyFail,
	}, logger)
	m.reset()
	m.publish()
	return m
}

func (m *Manager) reset() {
	m.playerHP = m.cfg.MaxHP
	m.enemies = make([]EnemyState, m.cfg.EnemyCount)
	for i := range m.enemies {
		m.enemies[i] = EnemyState{ID: fmt.Sprintf("enemy-%d", i+1), HP: m.cfg.EnemyHP, MaxHP: m.cfg.EnemyHP}
	}
	m.stats = Stats{}
	m.pending = nil
	m.playback = Playback{Timing: m.cfg.Timing}
}

// UseClock swaps the clock of a game that has not started. It reports
// whether the swap happened.
func (m *Manager) UseClock(c Clock) bool {
	if m.phase != PhaseIdle {
		return false
	}
	m.clock = c
	m.publish()
	return true
}

// Start resets the game and starts the clock so that position 0 follows the
// count-in.
func (m *Manager) Start() {
	m.reset()
	m.sched.Clear()
	m.judge.Reset()

	countIn := float64(m.cfg.CountInMeasures) * m.cfg.Timing.MeasureLength()
	m.clock.Start(countIn)
	m.playback.StartAt = -countIn
	m.playback.Playing = true
	m.now = m.clock.Now()
	m.phase = PhasePlaying
	if m.now < 0 {
		m.phase = PhaseCountIn
	}
	m.logger.Info("game started",
		"bpm", m.cfg.Timing.BPM,
		"time_signature", m.cfg.Timing.TimeSignature,
		"loop_measures", m.cfg.Timing.LoopMeasures,
		"count_in", countIn,
		"clock_degraded", m.clock.Degraded(),
	)
	m.publish()
}

// Tick advances the game to the clock's current position. It never panics;
// a fault inside a tick costs the watched event and nothing more.
func (m *Manager) Tick() {
	if m.phase == PhaseIdle || m.phase.Finished() {
		return
	}
	defer m.recoverFault()

	m.now = m.clock.Now()
	if m.now < 0 {
		m.phase = PhaseCountIn
	} else {
		m.phase = PhasePlaying
	}

	m.sched.Refill(m.now)
	for _, ev := range m.sched.Update(m.now) {
		m.pending = append(m.pending, ev)
		if m.hooks.OnQuestionSpawn != nil {
			m.hooks.OnQuestionSpawn(*ev)
		}
	}

	for !m.phase.Finished() {
		m.activate()
		if !m.judge.CheckTiming(m.now) {
			break
		}
	}
	m.publish()
}

// recoverFault turns a panic inside the tick goroutine into a miss of the
// watched event.
func (m *Manager) recoverFault() {
	if r := recover(); r != nil {
		m.logger.Error("tick fault, abandoning current event", "panic", r, "now", m.now)
		m.judge.Abandon(m.now)
		m.publish()
	}
}

// activate hands the oldest spawned event to the judge once the judge is
// free. Nothing is judged during the count-in.
func (m *Manager) activate() {
	if m.phase != PhasePlaying || !m.judge.Idle() || len(m.pending) == 0 {
		return
	}
	ev := m.pending[0]
	m.pending = m.pending[1:]
	m.judge.SetCurrent(ev, m.now)
}

// NoteOn feeds a pressed pitch. During the count-in the note is only held.
func (m *Manager) NoteOn(pitch int) {
	if m.phase.Finished() || m.phase == PhaseIdle {
		return
	}
	m.now = m.clock.Now()
	if m.now < 0 {
		m.judge.Hold(pitch)
		return
	}
	defer m.recoverFault()
	m.phase = PhasePlaying
	m.activate()
	m.judge.NoteOn(pitch, m.now)
	m.publish()
}

func (m *Manager) NoteOff(pitch int) {
	m.judge.NoteOff(pitch)
}

// Input applies an input event.
func (m *Manager) Input(in Input) {
	if in.On {
		m.NoteOn(in.Pitch)
		return
	}
	m.NoteOff(in.Pitch)
}

// Run ticks every cfg.TickInterval until the game finishes or ctx is done,
// applying inputs between ticks. Inputs must only ever reach the Manager
// through this channel while Run is active.
func (m *Manager) Run(ctx context.Context, inputs <-chan Input) error {
	if m.phase == PhaseIdle {
		m.Start()
	}
	t := time.NewTicker(m.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return ctx.Err()
		case in, ok := <-inputs:
			if !ok {
				inputs = nil
				continue
			}
			m.Input(in)
		case <-t.C:
			m.Tick()
		}
		if m.phase.Finished() {
			if m.phase == PhaseStopped {
				return ErrStopped
			}
			return nil
		}
	}
}

// Stop ends the game. It is safe to call more than once and keeps a cleared
// or game-over phase intact.
func (m *Manager) Stop() {
	if m.phase == PhaseStopped {
		return
	}
	if !m.phase.Finished() {
		m.phase = PhaseStopped
	}
	m.shutdown()
}

func (m *Manager) shutdown() {
	m.sched.Clear()
	m.judge.Reset()
	m.pending = nil
	m.clock.Stop()
	m.playback.Playing = false
	m.publish()
}

func (m *Manager) finish(p Phase) {
	if m.phase.Finished() {
		return
	}
	m.phase = p
	m.logger.Info("game finished",
		"phase", p,
		"score", m.stats.Score,
		"perfect", m.stats.Perfect,
		"misses", m.stats.Misses,
	)
	m.shutdown()
}

func (m *Manager) applySuccess(r Result) {
	switch r.Timing {
	case TimingPerfect:
		m.stats.Perfect++
	case TimingEarly:
		m.stats.Early++
	case TimingLate:
		m.stats.Late++
	}
	m.stats.Combo++
	m.stats.MaxCombo = max(m.stats.MaxCombo, m.stats.Combo)
	points := pointsGood
	if r.Timing == TimingPerfect {
		points = pointsPerfect
	}
	m.stats.Score += points * (10 + min(m.stats.Combo, 10)) / 10

	target := m.target()
	if target == nil {
		return
	}
	dmg := m.cfg.MaxDamage
	if r.Timing != TimingPerfect {
		dmg = m.cfg.MinDamage + m.cfg.Rand.IntN(m.cfg.MaxDamage-m.cfg.MinDamage+1)
	}
	target.HP = max(target.HP-dmg, 0)

	if m.hooks.OnAttackSuccess != nil {
		m.hooks.OnAttackSuccess(target.ID, r.Event.Chord, r)
	}
	if !target.Defeated() {
		return
	}
	if m.hooks.OnEnemyDefeated != nil {
		m.hooks.OnEnemyDefeated(target.ID)
	}
	if m.target() == nil {
		if m.hooks.OnAllEnemiesDefeated != nil {
			m.hooks.OnAllEnemiesDefeated()
		}
		m.finish(PhaseCleared)
	}
}

func (m *Manager) applyFail(r Result) {
	m.stats.Misses++
	m.stats.Combo = 0
	m.playerHP = max(m.playerHP-1, 0)

	targetID := ""
	if t := m.target(); t != nil {
		targetID = t.ID
	}
	if m.hooks.OnAttackFail != nil {
		m.hooks.OnAttackFail(targetID, r.Event.Chord, r)
	}
	if m.playerHP == 0 {
		if m.hooks.OnGameOver != nil {
			m.hooks.OnGameOver()
		}
		m.finish(PhaseGameOver)
	}
}

// target is the first enemy still standing.
func (m *Manager) target() *EnemyState {
	for i := range m.enemies {
		if !m.enemies[i].Defeated() {
			return &m.enemies[i]
		}
	}
	return nil
}

func (m *Manager) publish() {
	s := &Snapshot{
		Phase:         m.phase,
		Now:           m.now,
		Loop:          m.loopAt(m.now),
		Playback:      m.playback,
		PlayerHP:      m.playerHP,
		MaxHP:         m.cfg.MaxHP,
		Enemies:       append([]EnemyState(nil), m.enemies...),
		Stats:         m.stats,
		ClockDegraded: m.clock.Degraded(),
	}
	if cur := m.judge.Current(); cur != nil && !cur.Resolved() {
		ev := *cur
		s.Current = &ev
	}
	m.snap.Store(s)
}

func (m *Manager) loopAt(now float64) int {
	l := m.cfg.Timing.LoopLength()
	if now <= 0 || l <= 0 {
		return 0
	}
	return int(now / l)
}

// Snapshot returns the state as of the last tick. Safe from any goroutine.
func (m *Manager) Snapshot() Snapshot { return *m.snap.Load() }

func (m *Manager) Phase() Phase { return m.phase }

// Done reports whether the game reached a terminal phase.
func (m *Manager) Done() bool { return m.phase.Finished() }

// DoubleResolutions exposes the judge's invariant counter to tests.
func (m *Manager) DoubleResolutions() int { return m.judge.DoubleResolutions() }
