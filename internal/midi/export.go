package midi

import (
	"fmt"
	"io"
	"slices"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/jazzify/rhythmcore/internal/chord"
	"github.com/jazzify/rhythmcore/internal/rhythm"
)

const (
	exportResolution = smf.MetricTicks(960)
	exportVelocity   = 96
	exportOctave     = 4
)

type timed struct {
	tick uint32
	msg  midi.Message
}

// WriteProgression writes events as a single-track SMF, each chord held until
// the next one starts or for one measure after the last one.
func WriteProgression(w io.Writer, name string, events []rhythm.Event, t rhythm.Timing) error {
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b rhythm.Event) int {
		switch {
		case a.TargetTime < b.TargetTime:
			return -1
		case a.TargetTime > b.TargetTime:
			return 1
		}
		return 0
	})

	ticksPerSecond := float64(exportResolution.Ticks4th()) / t.BeatLength()
	toTick := func(sec float64) uint32 { return uint32(sec*ticksPerSecond + 0.5) }

	var msgs []timed
	for i, ev := range sorted {
		pitches, err := chord.Pitches(ev.Chord, exportOctave)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", ev.String(), err)
		}
		end := ev.TargetTime + t.MeasureLength()
		if i+1 < len(sorted) {
			end = sorted[i+1].TargetTime
		}
		on, off := toTick(ev.TargetTime), toTick(end)
		for _, p := range pitches {
			msgs = append(msgs,
				timed{on, midi.NoteOn(0, uint8(p), exportVelocity)},
				timed{off, midi.NoteOff(0, uint8(p))},
			)
		}
	}
	// Note-offs sort before note-ons on the same tick so repeated pitches
	// retrigger.
	slices.SortStableFunc(msgs, func(a, b timed) int {
		if a.tick != b.tick {
			return int(a.tick) - int(b.tick)
		}
		aOn, bOn := a.msg.Is(midi.NoteOnMsg), b.msg.Is(midi.NoteOnMsg)
		switch {
		case aOn == bOn:
			return 0
		case aOn:
			return 1
		}
		return -1
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(name))
	tr.Add(0, smf.MetaMeter(uint8(t.TimeSignature), 4))
	tr.Add(0, smf.MetaTempo(t.BPM))
	var last uint32
	for _, m := range msgs {
		tr.Add(m.tick-last, m.msg)
		last = m.tick
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = exportResolution
	if err := s.Add(tr); err != nil {
		return fmt.Errorf("building SMF: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("writing SMF: %w", err)
	}
	return nil
}

// TimedNote is a note read back from an SMF.
type TimedNote struct {
	Note
	Tick uint64
}

// ReadNotes returns every note event of an SMF in file order.
func ReadNotes(r io.Reader) (notes []TimedNote, err error) {
	// smf can panic on malformed input.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reading SMF: %v", p)
		}
	}()

	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("reading SMF: %w", err)
	}
	for _, tr := range s.Tracks {
		var abs uint64
		for _, ev := range tr {
			abs += uint64(ev.Delta)
			if n, ok := Decode(midi.Message(ev.Message)); ok {
				notes = append(notes, TimedNote{Note: n, Tick: abs})
			}
		}
	}
	return notes, nil
}
