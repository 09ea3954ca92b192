package rhythm

import (
	"log/slog"
	"math"
	"time"

	"github.com/jazzify/rhythmcore/internal/chord"
)

// Canonical judgment windows. Every event is judged against these unless the
// service configuration overrides them.
const (
	DefaultJudgmentWindow = 200 * time.Millisecond
	DefaultPerfectWindow  = 50 * time.Millisecond
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeMiss    Outcome = "miss"
)

type TimingLabel string

const (
	TimingPerfect TimingLabel = "perfect"
	TimingEarly   TimingLabel = "early"
	TimingLate    TimingLabel = "late"
	TimingMiss    TimingLabel = "miss"
)

// Result is the judgment of one event.
type Result struct {
	Event      Event       `json:"event"`
	Outcome    Outcome     `json:"outcome"`
	Timing     TimingLabel `json:"timing"`
	TimingDiff float64     `json:"timingDiff"`
}

// Resolver maps a chord symbol to the pitch classes that satisfy it.
type Resolver func(symbol string) (chord.PitchClassSet, error)

type JudgeConfig struct {
	Window    time.Duration
	Perfect   time.Duration
	Resolver  Resolver
	OnSuccess func(Result)
	OnFail    func(Result)
}

// Judge watches one event at a time:
//
//	idle -> watching (SetCurrent) -> resolved (success | miss)
//
// Each event reaches exactly one of OnSuccess/OnFail exactly once.
type Judge struct {
	cfg    JudgeConfig
	logger *slog.Logger

	current   *Event
	target    chord.PitchClassSet
	targetErr error
	held      NoteSet

	doubles int
}

func NewJudge(cfg JudgeConfig, logger *slog.Logger) *Judge {
	if cfg.Window <= 0 {
		cfg.Window = DefaultJudgmentWindow
	}
	if cfg.Perfect <= 0 || cfg.Perfect > cfg.Window {
		cfg.Perfect = min(DefaultPerfectWindow, cfg.Window)
	}
	if cfg.Resolver == nil {
		cfg.Resolver = chord.Resolve
	}
	return &Judge{cfg: cfg, logger: logger, held: NoteSet{}}
}

// SetCurrent starts watching ev. An unresolved event still being watched is
// closed through the timeout path first. Notes already held are judged
// against ev straight away.
func (j *Judge) SetCurrent(ev *Event, now float64) {
	if j.current != nil && !j.current.Resolved() {
		j.miss(now)
	}
	j.current = ev
	j.target, j.targetErr = j.cfg.Resolver(ev.Chord)
	if j.targetErr != nil {
		j.logger.Warn("unknown chord, event will time out",
			"event", ev.ID,
			"chord", ev.Chord,
			"error", j.targetErr,
		)
	}
	if len(j.held) > 0 {
		j.check(now)
	}
}

func (j *Judge) Current() *Event { return j.current }

// Idle reports whether the judge can take a new event.
func (j *Judge) Idle() bool { return j.current == nil || j.current.Resolved() }

// NoteOn records a held pitch and checks for a match.
func (j *Judge) NoteOn(pitch int, now float64) {
	j.held.On(pitch)
	j.check(now)
}

// Hold records a held pitch without judging, as during a count-in.
func (j *Judge) Hold(pitch int) { j.held.On(pitch) }

func (j *Judge) NoteOff(pitch int) { j.held.Off(pitch) }

func (j *Judge) Held() []int { return j.held.Pitches() }

func (j *Judge) check(now float64) {
	ev := j.current
	if ev == nil || ev.Resolved() || j.targetErr != nil {
		return
	}
	if !ev.InWindow(now, j.cfg.Window) {
		return
	}
	if !chord.FromPitches(j.held.Pitches()...).Equal(j.target) {
		return
	}

	diff := now - ev.TargetTime
	label := TimingLate
	switch {
	case math.Abs(diff) <= j.cfg.Perfect.Seconds():
		label = TimingPerfect
	case diff < 0:
		label = TimingEarly
	}
	if !j.resolve(ev) {
		return
	}
	j.held.Clear()
	if j.cfg.OnSuccess != nil {
		j.cfg.OnSuccess(Result{Event: *ev, Outcome: OutcomeSuccess, Timing: label, TimingDiff: diff})
	}
}

// CheckTiming closes the window of the watched event once now has passed it.
// It reports whether an event was resolved.
func (j *Judge) CheckTiming(now float64) bool {
	ev := j.current
	if ev == nil || ev.Resolved() {
		return false
	}
	if now <= ev.TargetTime+j.cfg.Window.Seconds() {
		return false
	}
	return j.miss(now)
}

// Abandon resolves the watched event as a miss regardless of the window.
// The manager uses it when a tick faults.
func (j *Judge) Abandon(now float64) bool {
	if j.current == nil || j.current.Resolved() {
		return false
	}
	return j.miss(now)
}

func (j *Judge) miss(now float64) bool {
	ev := j.current
	if !j.resolve(ev) {
		return false
	}
	if j.cfg.OnFail != nil {
		j.cfg.OnFail(Result{Event: *ev, Outcome: OutcomeMiss, Timing: TimingMiss, TimingDiff: now - ev.TargetTime})
	}
	return true
}

func (j *Judge) resolve(ev *Event) bool {
	if ev.resolve() {
		return true
	}
	j.doubles++
	j.logger.Debug("ignored second resolution", "event", ev.ID)
	return false
}

// DoubleResolutions counts attempts to resolve an already resolved event.
// It stays at zero unless an invariant is broken.
func (j *Judge) DoubleResolutions() int { return j.doubles }

// Reset forgets the watched event and all held notes.
func (j *Judge) Reset() {
	j.current = nil
	j.target = 0
	j.targetErr = nil
	j.held.Clear()
}
