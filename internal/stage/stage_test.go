package stage

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/jazzify/rhythmcore/internal/database"
	"github.com/jazzify/rhythmcore/internal/migrations"
	"github.com/jazzify/rhythmcore/internal/rhythm"
)

func validStage() Stage {
	return Stage{
		ID:            "test",
		Number:        "0-1",
		Name:          "Test",
		Mode:          ModeRandom,
		BPM:           120,
		TimeSignature: 4,
		LoopMeasures:  8,
		AllowedChords: []string{"C", "F", "G"},
		MaxHP:         5,
		EnemyCount:    1,
		EnemyHP:       5,
		MinDamage:     1,
		MaxDamage:     1,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Stage)
		field  string
	}{
		{"valid", func(*Stage) {}, ""},
		{"bpm too low", func(s *Stage) { s.BPM = 59 }, "bpm"},
		{"bpm too high", func(s *Stage) { s.BPM = 201 }, "bpm"},
		{"time signature", func(s *Stage) { s.TimeSignature = 5 }, "timeSignature"},
		{"loop too short", func(s *Stage) { s.LoopMeasures = 3 }, "loopMeasures"},
		{"loop too long", func(s *Stage) { s.LoopMeasures = 33 }, "loopMeasures"},
		{"random without chords", func(s *Stage) { s.AllowedChords = nil }, "allowedChords"},
		{"progression without entries", func(s *Stage) { s.Mode = ModeProgression }, "chordProgression"},
		{"unknown mode", func(s *Stage) { s.Mode = "shuffle" }, "mode"},
		{"unknown chord", func(s *Stage) { s.AllowedChords = []string{"C", "Xyz"} }, "chords"},
		{"unknown chord allowed", func(s *Stage) {
			s.AllowedChords = []string{"C", "Xyz"}
			s.AllowUnknownChords = true
		}, ""},
		{"progression outside loop", func(s *Stage) {
			s.Mode = ModeProgression
			s.Progression = []rhythm.ProgressionEntry{{Chord: "C", Measure: 9, Beat: 1}}
		}, "chordProgression[0].measure"},
		{"progression beat outside measure", func(s *Stage) {
			s.Mode = ModeProgression
			s.Progression = []rhythm.ProgressionEntry{{Chord: "C", Measure: 1, Beat: 5}}
		}, "chordProgression[0].beat"},
		{"progression entries on the same beat", func(s *Stage) {
			s.Mode = ModeProgression
			s.Progression = []rhythm.ProgressionEntry{
				{Chord: "C", Measure: 1, Beat: 1},
				{Chord: "F", Measure: 2, Beat: 1},
				{Chord: "G", Measure: 1, Beat: 1},
			}
		}, "chordProgression[2]"},
		{"damage range", func(s *Stage) { s.MinDamage, s.MaxDamage = 3, 2 }, "damage"},
		{"no hp", func(s *Stage) { s.MaxHP = 0 }, "maxHp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validStage()
			tt.mutate(&s)
			err := s.Validate()

			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid stage, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected a ConfigError, got %T", err)
			}
			if ce.Field != tt.field {
				t.Errorf("expected field %q, got %q (%v)", tt.field, ce.Field, err)
			}
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	s := validStage()
	s.BPM = 0
	s.TimeSignature = 7
	s.AllowedChords = nil

	err := s.Validate()
	for _, field := range []string{"bpm", "timeSignature", "allowedChords"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %q in %v", field, err)
		}
	}
}

func TestGeneratorFollowsMode(t *testing.T) {
	s := validStage()
	if _, ok := s.Generator(nil).(*rhythm.RandomPattern); !ok {
		t.Error("random stage should build a RandomPattern")
	}

	s.Mode = ModeProgression
	s.Progression = []rhythm.ProgressionEntry{{Chord: "G", Measure: 2, Beat: 1}, {Chord: "C", Measure: 1, Beat: 1}}
	gen := s.Generator(nil)
	ev, ok := gen.Next()
	if !ok || ev.Chord != "C" {
		t.Fatalf("expected C first, got %v", ev)
	}
	if gen.PerLoop() != 2 {
		t.Errorf("expected 2 events per loop, got %d", gen.PerLoop())
	}
}

func TestEngineConfig(t *testing.T) {
	s := validStage()
	s.CountInMeasures = 2
	cfg := s.EngineConfig(Windows{}, rand.New(rand.NewPCG(1, 1)))

	if cfg.Timing.MeasureLength() != 2.0 {
		t.Errorf("expected 2s measures, got %v", cfg.Timing.MeasureLength())
	}
	if cfg.CountInMeasures != 2 || cfg.MaxHP != 5 || cfg.EnemyHP != 5 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestCatalogueIsValid(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Catalogue() {
		if err := s.Validate(); err != nil {
			t.Errorf("%s: %v", s.ID, err)
		}
		if seen[s.ID] {
			t.Errorf("duplicate stage id %s", s.ID)
		}
		seen[s.ID] = true
		if s.MP3URL == "" {
			t.Errorf("%s: missing backing track", s.ID)
		}
	}
}

func testStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(ctx, db, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewStore(db)
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	if _, err := store.Get(ctx, "test"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s := validStage()
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "test")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Test" || len(got.AllowedChords) != 3 {
		t.Errorf("unexpected stage %+v", got)
	}

	s.Name = "Renamed"
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("update: %v", err)
	}
	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Name != "Renamed" {
		t.Errorf("expected one renamed stage, got %+v", all)
	}

	if err := store.Delete(ctx, "test"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStorePutRejectsInvalid(t *testing.T) {
	store := testStore(t)
	s := validStage()
	s.BPM = 10
	if err := store.Put(context.Background(), s); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestStoreResults(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)

	for _, r := range []Result{
		{SessionID: "a", StageID: "s1", Player: "ana", Score: 300},
		{SessionID: "b", StageID: "s1", Player: "ben", Score: 900},
		{SessionID: "c", StageID: "s2", Player: "cy", Score: 500},
		{SessionID: "a", StageID: "s1", Player: "ana", Score: 9999},
	} {
		if err := store.RecordResult(ctx, r); err != nil {
			t.Fatalf("record %s: %v", r.SessionID, err)
		}
	}

	got, err := store.ListResults(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Player != "ben" || got[1].Score != 300 {
		t.Errorf("unexpected order or duplicate overwrite: %+v", got)
	}
	if got[0].FinishedAt.IsZero() {
		t.Error("expected finishedAt to be set")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	logger := slog.New(slog.DiscardHandler)

	n, err := Seed(ctx, store, logger)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != len(Catalogue()) {
		t.Errorf("expected %d stages seeded, got %d", len(Catalogue()), n)
	}

	n, err = Seed(ctx, store, logger)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected second seed to add nothing, got %d", n)
	}
}
