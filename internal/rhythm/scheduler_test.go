package rhythm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTieBreak(t *testing.T) {
	s := NewScheduler(NewProgressionPattern(fourFour, nil), fourFour, discard())
	s.Load([]*Event{
		{ID: "c", Measure: 2, Beat: 1, TargetTime: 2, SpawnTime: 0},
		{ID: "b", Measure: 1, Beat: 3, TargetTime: 2, SpawnTime: 0},
		{ID: "a", Measure: 1, Beat: 1, TargetTime: 2, SpawnTime: 0},
		{ID: "z", Measure: 1, Beat: 1, TargetTime: 1, SpawnTime: 0},
	})

	due := s.Update(0)
	var ids []string
	for _, ev := range due {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"z", "a", "b", "c"}, ids)
	assert.Zero(t, s.Pending())
}

func TestSchedulerUpdatePopsOnlyDue(t *testing.T) {
	gen := NewProgressionPattern(fourFour, []ProgressionEntry{
		{Chord: "C", Measure: 1, Beat: 1},
		{Chord: "F", Measure: 2, Beat: 1},
		{Chord: "G", Measure: 3, Beat: 1},
	})
	s := NewScheduler(gen, fourFour, discard())
	require.Equal(t, 3, s.Refill(0))

	due := s.Update(0)
	require.Len(t, due, 2)
	assert.Equal(t, "C", due[0].Chord)
	assert.Equal(t, "F", due[1].Chord)
	assert.Empty(t, s.Update(1.99))

	due = s.Update(2)
	require.Len(t, due, 1)
	assert.Equal(t, "G", due[0].Chord)
}

func TestSchedulerLoopsStayMonotonic(t *testing.T) {
	tm := Timing{BPM: 120, TimeSignature: 4, LoopMeasures: 4}
	gen := NewProgressionPattern(tm, []ProgressionEntry{
		{Chord: "C", Measure: 1, Beat: 1},
		{Chord: "F", Measure: 2, Beat: 1},
		{Chord: "G", Measure: 3, Beat: 1},
		{Chord: "C", Measure: 4, Beat: 1},
	})
	s := NewScheduler(gen, tm, discard())

	var all []*Event
	for i := 0; i <= 4000; i++ {
		now := float64(i) / 100
		s.Refill(now)
		all = append(all, s.Update(now)...)
	}

	// Five full 8s loops plus the first two events of the sixth, which
	// spawn at 38s and 40s.
	require.Len(t, all, 22)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].TargetTime, all[i-1].TargetTime)
	}
	assert.Equal(t, 0, all[0].Loop)
	assert.Equal(t, 1, all[4].Loop)
	assert.Equal(t, 8.0, all[4].TargetTime)
	assert.Equal(t, "C", all[4].Chord)
}

func TestSchedulerRefillsAheadOfLoopEnd(t *testing.T) {
	gen := NewRandomPattern(fourFour, []string{"C", "F", "G"}, seeded(11))
	s := NewScheduler(gen, fourFour, discard())

	s.Refill(0)
	assert.Equal(t, 1, s.Loops())
	s.Refill(13.99)
	assert.Equal(t, 1, s.Loops())
	s.Refill(14)
	assert.Equal(t, 2, s.Loops())
	assert.Equal(t, 16, s.Pending())
}

func TestSchedulerDropsEventsBehindPlayhead(t *testing.T) {
	tm := Timing{BPM: 120, TimeSignature: 4, LoopMeasures: 2}
	// Measure 3 lies beyond a two-measure loop and lands on the next loop's
	// first downbeat.
	gen := NewProgressionPattern(tm, []ProgressionEntry{
		{Chord: "C", Measure: 1, Beat: 1},
		{Chord: "G", Measure: 3, Beat: 1},
	})
	s := NewScheduler(gen, tm, discard())
	s.Refill(0)
	s.Refill(2)

	var targets []float64
	for _, ev := range s.Update(100) {
		targets = append(targets, ev.TargetTime)
	}
	assert.Equal(t, []float64{0, 4, 8}, targets)
}

func TestSchedulerEmptyGenerator(t *testing.T) {
	s := NewScheduler(NewRandomPattern(fourFour, nil, nil), fourFour, discard())
	assert.Zero(t, s.Refill(100))
	assert.Empty(t, s.Update(100))
}

func TestSchedulerClear(t *testing.T) {
	s := NewScheduler(NewRandomPattern(fourFour, []string{"C", "G"}, seeded(2)), fourFour, discard())
	s.Refill(0)
	require.NotZero(t, s.Pending())
	s.Clear()
	assert.Zero(t, s.Pending())
	assert.Zero(t, s.Loops())
}
