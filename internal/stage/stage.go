// Package stage defines playable stages, validates them before a game may
// start, and persists them together with finished-session results.
package stage

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/jazzify/rhythmcore/internal/chord"
	"github.com/jazzify/rhythmcore/internal/rhythm"
)

// ErrInvalid is wrapped by every ConfigError.
var ErrInvalid = errors.New("invalid stage")

type Mode string

const (
	ModeRandom      Mode = "random"
	ModeProgression Mode = "progression"
)

type Stage struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Mode          Mode                      `json:"mode"`
	BPM           float64                   `json:"bpm"`
	TimeSignature int                       `json:"timeSignature"`
	LoopMeasures  int                       `json:"loopMeasures"`
	LeadBeats     int                       `json:"leadBeats,omitempty"`
	AllowedChords []string                  `json:"allowedChords,omitempty"`
	Progression   []rhythm.ProgressionEntry `json:"chordProgression,omitempty"`
	MP3URL        string                    `json:"mp3Url,omitempty"`

	CountInMeasures int `json:"countInMeasures"`
	MaxHP           int `json:"maxHp"`
	EnemyCount      int `json:"enemyCount"`
	EnemyHP         int `json:"enemyHp"`
	MinDamage       int `json:"minDamage"`
	MaxDamage       int `json:"maxDamage"`

	// AllowUnknownChords lets a stage through validation with chords the
	// resolver cannot read. Those events always end as misses.
	AllowUnknownChords bool `json:"allowUnknownChords,omitempty"`
}

// ConfigError describes one problem with a stage definition.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalid }

// Validate reports every problem found, joined. The returned error matches
// ErrInvalid and each problem can be pulled out with errors.As.
func (s *Stage) Validate() error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if s.ID == "" {
		bad("id", "is required")
	}
	if s.BPM < 60 || s.BPM > 200 {
		bad("bpm", "must be between 60 and 200, got %g", s.BPM)
	}
	if s.TimeSignature != 3 && s.TimeSignature != 4 {
		bad("timeSignature", "must be 3 or 4, got %d", s.TimeSignature)
	}
	if s.LoopMeasures < 4 || s.LoopMeasures > 32 {
		bad("loopMeasures", "must be between 4 and 32, got %d", s.LoopMeasures)
	}
	if s.LeadBeats < 0 {
		bad("leadBeats", "must not be negative")
	}
	if s.CountInMeasures < 0 {
		bad("countInMeasures", "must not be negative")
	}

	var symbols []string
	switch s.Mode {
	case ModeRandom:
		if len(s.AllowedChords) == 0 {
			bad("allowedChords", "random mode needs at least one chord")
		}
		symbols = s.AllowedChords
	case ModeProgression:
		if len(s.Progression) == 0 {
			bad("chordProgression", "progression mode needs at least one entry")
		}
		seen := make(map[[2]int]int, len(s.Progression))
		for i, e := range s.Progression {
			if j, ok := seen[[2]int{e.Measure, e.Beat}]; ok {
				bad(fmt.Sprintf("chordProgression[%d]", i), "shares measure %d beat %d with entry %d", e.Measure, e.Beat, j)
			} else {
				seen[[2]int{e.Measure, e.Beat}] = i
			}
			if e.Measure < 1 || e.Measure > s.LoopMeasures {
				bad(fmt.Sprintf("chordProgression[%d].measure", i), "must be within the loop, got %d", e.Measure)
			}
			if e.Beat < 1 || e.Beat > s.TimeSignature {
				bad(fmt.Sprintf("chordProgression[%d].beat", i), "must be within the measure, got %d", e.Beat)
			}
			symbols = append(symbols, e.Chord)
		}
	default:
		bad("mode", "must be %q or %q, got %q", ModeRandom, ModeProgression, s.Mode)
	}
	if !s.AllowUnknownChords {
		for _, sym := range symbols {
			if _, err := chord.Resolve(sym); err != nil {
				bad("chords", "%v", err)
			}
		}
	}

	if s.MaxHP <= 0 {
		bad("maxHp", "must be positive")
	}
	if s.EnemyCount <= 0 {
		bad("enemyCount", "must be positive")
	}
	if s.EnemyHP <= 0 {
		bad("enemyHp", "must be positive")
	}
	if s.MinDamage <= 0 || s.MaxDamage < s.MinDamage {
		bad("damage", "need 0 < minDamage <= maxDamage, got %d..%d", s.MinDamage, s.MaxDamage)
	}

	return errors.Join(errs...)
}

func (s *Stage) Timing() rhythm.Timing {
	return rhythm.Timing{
		BPM:           s.BPM,
		TimeSignature: s.TimeSignature,
		LoopMeasures:  s.LoopMeasures,
		LeadBeats:     s.LeadBeats,
	}
}

// Chords lists every distinct chord the stage can ask for.
func (s *Stage) Chords() []string {
	var out []string
	add := func(c string) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	for _, c := range s.AllowedChords {
		add(c)
	}
	for _, e := range s.Progression {
		add(e.Chord)
	}
	return out
}

// Generator builds the pattern generator the stage's mode calls for.
func (s *Stage) Generator(rng *rand.Rand) rhythm.Generator {
	if s.Mode == ModeProgression {
		return rhythm.NewProgressionPattern(s.Timing(), s.Progression)
	}
	return rhythm.NewRandomPattern(s.Timing(), s.AllowedChords, rng)
}

// Windows overrides the judgment windows. Zero values keep the defaults.
type Windows struct {
	Judgment time.Duration
	Perfect  time.Duration
	Tick     time.Duration
}

// EngineConfig maps the stage onto a rhythm.Manager configuration.
func (s *Stage) EngineConfig(w Windows, rng *rand.Rand) rhythm.Config {
	return rhythm.Config{
		Timing:          s.Timing(),
		CountInMeasures: s.CountInMeasures,
		MaxHP:           s.MaxHP,
		EnemyCount:      s.EnemyCount,
		EnemyHP:         s.EnemyHP,
		MinDamage:       s.MinDamage,
		MaxDamage:       s.MaxDamage,
		JudgmentWindow:  w.Judgment,
		PerfectWindow:   w.Perfect,
		TickInterval:    w.Tick,
		Rand:            rng,
	}
}
