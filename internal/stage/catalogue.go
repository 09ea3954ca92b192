package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jazzify/rhythmcore/internal/rhythm"
)

var roots = []string{"C", "D", "E", "F", "G", "A", "B", "C#", "D#", "F#", "G#", "A#"}

var backingTracks = []string{
	"https://jazzify-cdn.com/fantasy-bgm/f1394110-0bc3-4e6b-86fe-70d2b5795a42.mp3",
	"https://jazzify-cdn.com/fantasy-bgm/9afb5319-7ebe-4e01-8bf2-4509b5c20de7.mp3",
	"https://jazzify-cdn.com/fantasy-bgm/26de516b-a972-4991-9110-37d10d9bae65.mp3",
	"https://jazzify-cdn.com/fantasy-bgm/717e9562-9612-46b0-8358-e170f5a5530d.mp3",
}

// everyRoot spells each quality on all twelve roots.
func everyRoot(qualities ...string) []string {
	out := make([]string, 0, len(roots)*len(qualities))
	for _, q := range qualities {
		for _, r := range roots {
			out = append(out, r+q)
		}
	}
	return out
}

func basic(number, name, description string, chords []string) Stage {
	return Stage{
		ID:              "basic-" + number,
		Number:          number,
		Name:            name,
		Description:     description,
		Mode:            ModeRandom,
		BPM:             120,
		TimeSignature:   4,
		LoopMeasures:    8,
		AllowedChords:   chords,
		CountInMeasures: 1,
		MaxHP:           5,
		EnemyCount:      1,
		EnemyHP:         5,
		MinDamage:       1,
		MaxDamage:       1,
	}
}

// Catalogue returns the built-in stages.
func Catalogue() []Stage {
	stages := []Stage{
		{
			ID:            "basic-1-1",
			Number:        "1-1",
			Name:          "Village Gate",
			Description:   "I IV V I in C",
			Mode:          ModeProgression,
			BPM:           100,
			TimeSignature: 4,
			LoopMeasures:  4,
			Progression: []rhythm.ProgressionEntry{
				{Chord: "C", Measure: 1, Beat: 1},
				{Chord: "F", Measure: 2, Beat: 1},
				{Chord: "G", Measure: 3, Beat: 1},
				{Chord: "C", Measure: 4, Beat: 1},
			},
			CountInMeasures: 1,
			MaxHP:           5,
			EnemyCount:      1,
			EnemyHP:         5,
			MinDamage:       1,
			MaxDamage:       1,
		},
		{
			ID:            "basic-1-2",
			Number:        "1-2",
			Name:          "Waltz Hall",
			Description:   "ii V I in 3/4",
			Mode:          ModeProgression,
			BPM:           90,
			TimeSignature: 3,
			LoopMeasures:  4,
			LeadBeats:     3,
			Progression: []rhythm.ProgressionEntry{
				{Chord: "Dm7", Measure: 1, Beat: 1},
				{Chord: "G7", Measure: 2, Beat: 1},
				{Chord: "CM7", Measure: 3, Beat: 1},
			},
			CountInMeasures: 1,
			MaxHP:           5,
			EnemyCount:      2,
			EnemyHP:         3,
			MinDamage:       1,
			MaxDamage:       2,
		},
		basic("6-5", "Aurora Observatory", "Diminished triads", everyRoot("dim")),
		basic("6-6", "Rime Forest", "Augmented triads", everyRoot("aug")),
		basic("6-8", "Ice Crystal Fortress", "sus4, dim and aug", everyRoot("sus4", "dim", "aug")),
		basic("6-10", "Silver Snowfield", "Major and minor triads on every root", everyRoot("", "m")),
		basic("8-1", "Sky Garden", "C, F and G, major and minor", []string{"C", "F", "G", "Cm", "Fm", "Gm"}),
		basic("8-6", "Thunder Plain", "Am, Dm and Em", []string{"Am", "Dm", "Em"}),
		basic("9-1", "Forgotten Graveyard", "Major sevenths", everyRoot("M7")),
		basic("9-3", "Ghost Train Station", "Dominant sevenths", everyRoot("7")),
		basic("9-9", "Shadow Corridor", "M7, m7, 7 and m7b5", everyRoot("M7", "m7", "7", "m7b5")),
		basic("10-1", "Haunted Chapel", "Minor major sevenths", everyRoot("m/maj7")),
		basic("10-3", "Sunken Crypt", "Diminished sevenths", everyRoot("dim7")),
		basic("10-4", "Pumpkin Field", "Seventh suspended fourths", everyRoot("7sus4")),
	}
	for i := range stages {
		stages[i].MP3URL = backingTracks[i%len(backingTracks)]
	}
	return stages
}

// Seed stores every catalogue stage that is not stored yet and returns how
// many it added. Stages already present are left untouched.
func Seed(ctx context.Context, store *Store, logger *slog.Logger) (int, error) {
	added := 0
	for _, st := range Catalogue() {
		_, err := store.Get(ctx, st.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return added, err
		}
		if err := store.Put(ctx, st); err != nil {
			return added, fmt.Errorf("seeding %s: %w", st.ID, err)
		}
		added++
	}
	if added > 0 {
		logger.Info("stages seeded", "count", added)
	}
	return added, nil
}
