// Package chord resolves chord and note symbols used in stage definitions
// into pitch-class sets so that played notes can be compared regardless of
// octave or voicing.
package chord

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

var ErrUnknownChord = errors.New("unknown chord")

// PitchClassSet is a set of pitch classes (0 = C ... 11 = B) packed into the
// low 12 bits.
type PitchClassSet uint16

// FromPitches folds MIDI pitches into their pitch classes.
func FromPitches(pitches ...int) PitchClassSet {
	var s PitchClassSet
	for _, p := range pitches {
		s = s.Add(p)
	}
	return s
}

func (s PitchClassSet) Add(pitch int) PitchClassSet {
	pc := ((pitch % 12) + 12) % 12
	return s | 1<<pc
}

func (s PitchClassSet) Contains(pc int) bool {
	pc = ((pc % 12) + 12) % 12
	return s&(1<<pc) != 0
}

func (s PitchClassSet) Len() int { return bits.OnesCount16(uint16(s)) }

func (s PitchClassSet) Equal(o PitchClassSet) bool { return s == o }

// Classes returns the members in ascending order.
func (s PitchClassSet) Classes() []int {
	out := make([]int, 0, s.Len())
	for pc := 0; pc < 12; pc++ {
		if s.Contains(pc) {
			out = append(out, pc)
		}
	}
	return out
}

func (s PitchClassSet) String() string {
	parts := make([]string, 0, s.Len())
	for _, pc := range s.Classes() {
		parts = append(parts, strconv.Itoa(pc))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// intervals above the root, in voicing order.
var qualities = map[string][]int{
	"":       {0, 4, 7},
	"M":      {0, 4, 7},
	"maj":    {0, 4, 7},
	"m":      {0, 3, 7},
	"min":    {0, 3, 7},
	"dim":    {0, 3, 6},
	"aug":    {0, 4, 8},
	"+":      {0, 4, 8},
	"sus4":   {0, 5, 7},
	"sus2":   {0, 2, 7},
	"6":      {0, 4, 7, 9},
	"m6":     {0, 3, 7, 9},
	"add9":   {0, 2, 4, 7},
	"M7":     {0, 4, 7, 11},
	"maj7":   {0, 4, 7, 11},
	"m7":     {0, 3, 7, 10},
	"7":      {0, 4, 7, 10},
	"m7b5":   {0, 3, 6, 10},
	"m/maj7": {0, 3, 7, 11},
	"mM7":    {0, 3, 7, 11},
	"mmaj7":  {0, 3, 7, 11},
	"aug7":   {0, 4, 8, 10},
	"7#5":    {0, 4, 8, 10},
	"dim7":   {0, 3, 6, 9},
	"7sus4":  {0, 5, 7, 10},
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var naturals = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Chord is a parsed symbol.
type Chord struct {
	Symbol    string
	Root      int
	Intervals []int

	// Single is set for note targets such as "C4"; Octave is only
	// meaningful then.
	Single bool
	Octave int

	bass int
}

// Set returns the pitch classes the chord consists of.
func (c Chord) Set() PitchClassSet {
	var s PitchClassSet
	for _, iv := range c.Intervals {
		s = s.Add(c.Root + iv)
	}
	if c.bass >= 0 {
		s = s.Add(c.bass)
	}
	return s
}

// Pitches voices the chord in root position starting at the given octave
// (C4 = 60). Single-note targets ignore octave and use their own.
func (c Chord) Pitches(octave int) []int {
	if c.Single {
		octave = c.Octave
	}
	root := 12*(octave+1) + c.Root
	out := make([]int, 0, len(c.Intervals)+1)
	if c.bass >= 0 && c.bass != c.Root {
		b := 12*(octave+1) + c.bass
		if b >= root {
			b -= 12
		}
		out = append(out, b)
	}
	for _, iv := range c.Intervals {
		out = append(out, root+iv)
	}
	return out
}

// Parse reads a chord symbol like "C", "F#m7", "Bbm7b5", "Cm/maj7", "C/E" or
// a single note with octave such as "A4".
func Parse(symbol string) (Chord, error) {
	sym := strings.TrimSpace(symbol)
	root, rest, err := parseNote(sym)
	if err != nil {
		return Chord{}, fmt.Errorf("%w: %q", ErrUnknownChord, symbol)
	}

	if iv, ok := qualities[rest]; ok {
		return Chord{Symbol: sym, Root: root, Intervals: iv, bass: -1}, nil
	}

	// Qualities win over octaves, so "C7" is a dominant seventh and "C4" a note.
	if oct, err := strconv.Atoi(rest); err == nil {
		return Chord{Symbol: sym, Root: root, Intervals: []int{0}, Single: true, Octave: oct, bass: -1}, nil
	}

	if i := strings.LastIndexByte(rest, '/'); i >= 0 {
		iv, ok := qualities[rest[:i]]
		bass, tail, err := parseNote(rest[i+1:])
		if ok && err == nil && tail == "" {
			return Chord{Symbol: sym, Root: root, Intervals: iv, bass: bass}, nil
		}
	}

	return Chord{}, fmt.Errorf("%w: %q", ErrUnknownChord, symbol)
}

// Resolve returns the pitch-class set of a chord symbol.
func Resolve(symbol string) (PitchClassSet, error) {
	c, err := Parse(symbol)
	if err != nil {
		return 0, err
	}
	return c.Set(), nil
}

// Pitches voices symbol at octave; see Chord.Pitches.
func Pitches(symbol string, octave int) ([]int, error) {
	c, err := Parse(symbol)
	if err != nil {
		return nil, err
	}
	return c.Pitches(octave), nil
}

// Name spells a MIDI pitch using sharps, e.g. 60 -> "C4".
func Name(pitch int) string {
	if pitch < 0 {
		return fmt.Sprintf("?%d", pitch)
	}
	return fmt.Sprintf("%s%d", noteNames[pitch%12], pitch/12-1)
}

func parseNote(s string) (pc int, rest string, err error) {
	if s == "" {
		return 0, "", errors.New("empty note")
	}
	pc, ok := naturals[s[0]]
	if !ok {
		return 0, "", fmt.Errorf("bad root %q", s[0])
	}
	rest = s[1:]
	for len(rest) > 0 {
		switch rest[0] {
		case '#':
			pc++
		case 'b':
			pc--
		default:
			return (pc + 12) % 12, rest, nil
		}
		rest = rest[1:]
	}
	return (pc + 12) % 12, rest, nil
}
