package rhythm

import (
	"log/slog"
	"slices"
)

// Scheduler holds the events that have not spawned yet and hands them out as
// the playhead reaches their spawn time. It asks its Generator for the next
// loop's batch shortly before the current loop runs out.
type Scheduler struct {
	gen    Generator
	timing Timing
	logger *slog.Logger

	queue      []*Event
	nextLoop   int
	lastTarget float64
	hasTarget  bool
}

func NewScheduler(gen Generator, t Timing, logger *slog.Logger) *Scheduler {
	return &Scheduler{gen: gen, timing: t, logger: logger}
}

// Load enqueues events, keeping the queue ordered by target time and then
// (measure, beat).
func (s *Scheduler) Load(events []*Event) {
	s.queue = append(s.queue, events...)
	slices.SortStableFunc(s.queue, compareEvents)
}

// Refill generates every loop whose first spawn could fall at or before now.
// It returns the number of events added.
func (s *Scheduler) Refill(now float64) int {
	added := 0
	for now >= float64(s.nextLoop)*s.timing.LoopLength()-s.timing.Lead() {
		batch := s.batch(s.nextLoop)
		if len(batch) == 0 {
			// A generator without events would spin here forever.
			s.nextLoop++
			return added
		}
		s.Load(batch)
		added += len(batch)
		s.nextLoop++
	}
	return added
}

func (s *Scheduler) batch(loop int) []*Event {
	s.gen.Reset()
	n := s.gen.PerLoop()
	offset := float64(loop) * s.timing.LoopLength()

	out := make([]*Event, 0, n)
	for range n {
		ev, ok := s.gen.Next()
		if !ok {
			break
		}
		ev.Loop = loop
		ev.TargetTime += offset
		ev.SpawnTime += offset
		if s.hasTarget && ev.TargetTime <= s.lastTarget {
			s.logger.Warn("dropping event behind playhead",
				"event", ev.String(),
				"last_target", s.lastTarget,
			)
			continue
		}
		s.lastTarget = ev.TargetTime
		s.hasTarget = true
		out = append(out, ev)
	}
	return out
}

// Update pops every queued event whose spawn time is at or before now, in
// ascending time order.
func (s *Scheduler) Update(now float64) []*Event {
	n := 0
	for n < len(s.queue) && s.queue[n].SpawnTime <= now {
		n++
	}
	if n == 0 {
		return nil
	}
	due := slices.Clone(s.queue[:n])
	s.queue = slices.Delete(s.queue, 0, n)
	return due
}

func (s *Scheduler) Pending() int { return len(s.queue) }

// Loops is the number of loop batches generated so far.
func (s *Scheduler) Loops() int { return s.nextLoop }

// Clear drops everything and rewinds to loop 0.
func (s *Scheduler) Clear() {
	s.queue = nil
	s.nextLoop = 0
	s.lastTarget = 0
	s.hasTarget = false
	s.gen.Reset()
}

func compareEvents(a, b *Event) int {
	switch {
	case a.TargetTime < b.TargetTime:
		return -1
	case a.TargetTime > b.TargetTime:
		return 1
	case a.Measure != b.Measure:
		return a.Measure - b.Measure
	default:
		return a.Beat - b.Beat
	}
}
