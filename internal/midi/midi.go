// Package midi connects hardware keyboards to the game and exports generated
// patterns as Standard MIDI Files.
package midi

import (
	"errors"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/jazzify/rhythmcore/internal/rhythm"
)

var ErrNoDriver = errors.New("native MIDI driver is not included in this build (build with -tags midi_native)")

// Note is a decoded note-on or note-off.
type Note struct {
	On       bool
	Channel  int
	Pitch    int
	Velocity int
}

// Sink receives notes from an input device.
type Sink interface {
	NoteOn(pitch int)
	NoteOff(pitch int)
}

// Decode extracts a note from msg. A note-on with velocity 0 is a note-off.
func Decode(msg midi.Message) (Note, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Note{On: true, Channel: int(ch), Pitch: int(key), Velocity: int(vel)}, true
	case msg.GetNoteEnd(&ch, &key):
		return Note{Channel: int(ch), Pitch: int(key)}, true
	}
	return Note{}, false
}

// Dispatch forwards msg to sink if it is a note. It reports whether it was.
func Dispatch(sink Sink, msg midi.Message) bool {
	n, ok := Decode(msg)
	if !ok {
		return false
	}
	if n.On {
		sink.NoteOn(n.Pitch)
	} else {
		sink.NoteOff(n.Pitch)
	}
	return true
}

// noteOffWait bounds how long a note-off waits for room in a full channel.
const noteOffWait = 50 * time.Millisecond

// InputSink feeds notes into a game's input channel. A full channel drops a
// note-on rather than stall the driver thread. A note-off waits briefly, since
// losing one leaves the pitch held for the rest of the game.
type InputSink chan<- rhythm.Input

func (s InputSink) NoteOn(pitch int) {
	select {
	case s <- rhythm.Input{On: true, Pitch: pitch}:
	default:
	}
}

func (s InputSink) NoteOff(pitch int) {
	t := time.NewTimer(noteOffWait)
	defer t.Stop()
	select {
	case s <- rhythm.Input{Pitch: pitch}:
	case <-t.C:
	}
}
