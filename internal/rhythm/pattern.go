package rhythm

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Generator produces the events of a stage. Positions are loop-relative;
// the Scheduler shifts each batch onto the running playhead.
type Generator interface {
	// Next returns the following event, or false if the generator has
	// nothing to offer.
	Next() (*Event, bool)
	// Reset rewinds to the start of a loop.
	Reset()
	// PerLoop is the number of events that make up one loop.
	PerLoop() int
}

// RandomPattern puts one chord on beat 1 of every measure, never repeating
// the previous chord unless only one chord is allowed.
type RandomPattern struct {
	timing  Timing
	chords  []string
	rng     *rand.Rand
	last    string
	measure int
}

// NewRandomPattern builds a random pattern. A nil rng draws from a
// time-seeded source. Duplicate chords are collapsed.
func NewRandomPattern(t Timing, allowed []string, rng *rand.Rand) *RandomPattern {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	chords := make([]string, 0, len(allowed))
	for _, c := range allowed {
		if !slices.Contains(chords, c) {
			chords = append(chords, c)
		}
	}
	return &RandomPattern{timing: t, chords: chords, rng: rng}
}

func (p *RandomPattern) Next() (*Event, bool) {
	if len(p.chords) == 0 {
		return nil, false
	}
	if p.measure >= p.timing.LoopMeasures {
		p.measure = 0
	}
	p.measure++

	chord := p.pick()
	p.last = chord
	return newEvent(p.timing, chord, p.measure, 1), true
}

func (p *RandomPattern) pick() string {
	if len(p.chords) == 1 {
		return p.chords[0]
	}
	candidates := make([]string, 0, len(p.chords))
	for _, c := range p.chords {
		if c != p.last {
			candidates = append(candidates, c)
		}
	}
	return candidates[p.rng.IntN(len(candidates))]
}

// Reset rewinds to measure 1. The last chord is kept so the first chord of
// the next loop still differs from the final one of this loop.
func (p *RandomPattern) Reset() { p.measure = 0 }

func (p *RandomPattern) PerLoop() int {
	if len(p.chords) == 0 {
		return 0
	}
	return p.timing.LoopMeasures
}

// ProgressionEntry places a chord at a fixed position of the loop.
type ProgressionEntry struct {
	Chord   string `json:"chord"`
	Measure int    `json:"measure"`
	Beat    int    `json:"beat"`
}

// ProgressionPattern replays a fixed list of entries in (measure, beat)
// order, wrapping to the first entry after the last one.
type ProgressionPattern struct {
	timing  Timing
	entries []ProgressionEntry
	idx     int
}

func NewProgressionPattern(t Timing, entries []ProgressionEntry) *ProgressionPattern {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b ProgressionEntry) int {
		if a.Measure != b.Measure {
			return a.Measure - b.Measure
		}
		return a.Beat - b.Beat
	})
	return &ProgressionPattern{timing: t, entries: sorted}
}

func (p *ProgressionPattern) Next() (*Event, bool) {
	if len(p.entries) == 0 {
		return nil, false
	}
	e := p.entries[p.idx]
	p.idx = (p.idx + 1) % len(p.entries)
	return newEvent(p.timing, e.Chord, e.Measure, e.Beat), true
}

func (p *ProgressionPattern) Reset() { p.idx = 0 }

func (p *ProgressionPattern) PerLoop() int { return len(p.entries) }

func newEvent(t Timing, chord string, measure, beat int) *Event {
	target := t.TargetTime(measure, beat)
	return &Event{
		ID:         uuid.NewString(),
		Chord:      chord,
		Measure:    measure,
		Beat:       beat,
		TargetTime: target,
		SpawnTime:  target - t.Lead(),
	}
}
