// Package rhythm is the timing and judgment core of the rhythm game: it
// schedules chord prompts against an audio clock, judges played notes inside
// tight windows, and turns the outcomes into game effects.
//
// Nothing here blocks or performs I/O. A Manager is driven by exactly one
// goroutine; everything else talks to it through Manager.Run's input channel.
package rhythm

import (
	"fmt"
	"time"
)

// Event is one musical prompt the player must answer.
type Event struct {
	ID         string  `json:"id"`
	Chord      string  `json:"chord"`
	Measure    int     `json:"measure"`
	Beat       int     `json:"beat"`
	Loop       int     `json:"loop"`
	TargetTime float64 `json:"targetTime"`
	SpawnTime  float64 `json:"spawnTime"`

	resolved bool
}

func (e *Event) Resolved() bool { return e.resolved }

// resolve flips the event to resolved and reports whether this call did it.
func (e *Event) resolve() bool {
	if e.resolved {
		return false
	}
	e.resolved = true
	return true
}

// InWindow reports whether now lies in [TargetTime-w, TargetTime+w].
func (e *Event) InWindow(now float64, w time.Duration) bool {
	d := w.Seconds()
	return now >= e.TargetTime-d && now <= e.TargetTime+d
}

func (e *Event) String() string {
	return fmt.Sprintf("%s@m%db%d(loop %d, t=%.3f)", e.Chord, e.Measure, e.Beat, e.Loop, e.TargetTime)
}

// Timing holds the tempo grid a stage is played on.
type Timing struct {
	BPM           float64 `json:"bpm"`
	TimeSignature int     `json:"timeSignature"`
	LoopMeasures  int     `json:"loopMeasures"`
	// LeadBeats is how far ahead of its target an event spawns. Zero means
	// one full measure.
	LeadBeats int `json:"leadBeats,omitempty"`
}

func (t Timing) BeatLength() float64 { return 60 / t.BPM }

func (t Timing) MeasureLength() float64 { return t.BeatLength() * float64(t.TimeSignature) }

func (t Timing) LoopLength() float64 { return t.MeasureLength() * float64(t.LoopMeasures) }

func (t Timing) Lead() float64 {
	if t.LeadBeats > 0 {
		return float64(t.LeadBeats) * t.BeatLength()
	}
	return t.MeasureLength()
}

// TargetTime is the loop-relative time of a 1-based (measure, beat).
func (t Timing) TargetTime(measure, beat int) float64 {
	return float64(measure-1)*t.MeasureLength() + float64(beat-1)*t.BeatLength()
}

// Playback is the transport state of a running session. Only the Manager
// writes it.
type Playback struct {
	Timing
	StartAt float64 `json:"startAt"`
	Playing bool    `json:"playing"`
}

// Input is a note-on or note-off from an input adapter.
type Input struct {
	On    bool `json:"on"`
	Pitch int  `json:"pitch"`
}

// NoteSet is the set of currently held pitches.
type NoteSet map[int]struct{}

func (s NoteSet) On(pitch int)  { s[pitch] = struct{}{} }
func (s NoteSet) Off(pitch int) { delete(s, pitch) }

func (s NoteSet) Clear() {
	for p := range s {
		delete(s, p)
	}
}

func (s NoteSet) Pitches() []int {
	out := make([]int, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}
