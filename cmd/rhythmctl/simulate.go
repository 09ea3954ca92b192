package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/jazzify/rhythmcore/internal/chord"
	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/stage"
)

type simOptions struct {
	Accuracy float64
	Jitter   time.Duration
	Loops    int
	Seed     uint64
	Step     time.Duration
}

var simFlags = simOptions{Step: 4 * time.Millisecond}

func init() {
	f := simulateCmd.Flags()
	f.Float64Var(&simFlags.Accuracy, "accuracy", 0.9, "share of events the simulated player attempts")
	f.DurationVar(&simFlags.Jitter, "jitter", 30*time.Millisecond, "standard deviation of the player's timing error")
	f.IntVar(&simFlags.Loops, "loops", 2, "loops to play before stopping")
	f.Uint64Var(&simFlags.Seed, "seed", 1, "random seed for the pattern and the player")
	rootCmd.AddCommand(simulateCmd)
}

var simulateCmd = &cobra.Command{
	Use:   "simulate STAGE_ID",
	Short: "Play a stage with a simulated player on a virtual clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		st, err := loadStage(cmd.Context(), args[0], logger)
		if err != nil {
			return err
		}
		snap, err := simulate(st, simFlags, logger)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		s := snap.Stats
		fmt.Fprintf(out, "stage      %s (%s)\n", st.ID, st.Name)
		fmt.Fprintf(out, "outcome    %s after %.2fs\n", snap.Phase, snap.Now)
		fmt.Fprintf(out, "judged     %d  perfect %d  early %d  late %d  miss %d\n", s.Judged(), s.Perfect, s.Early, s.Late, s.Misses)
		fmt.Fprintf(out, "score      %d  max combo %d\n", s.Score, s.MaxCombo)
		fmt.Fprintf(out, "player hp  %d/%d\n", snap.PlayerHP, snap.MaxHP)
		for _, e := range snap.Enemies {
			fmt.Fprintf(out, "%-10s %d/%d\n", e.ID, e.HP, e.MaxHP)
		}
		return nil
	},
}

type press struct {
	at      float64
	pitches []int
}

// simulate plays st on a ManualClock, pressing each spawned chord at its
// target time plus a normally distributed error.
func simulate(st stage.Stage, opts simOptions, logger *slog.Logger) (rhythm.Snapshot, error) {
	if err := st.Validate(); err != nil {
		return rhythm.Snapshot{}, err
	}
	if opts.Step <= 0 {
		opts.Step = 4 * time.Millisecond
	}
	rng := rand.New(rand.NewPCG(opts.Seed, 2))
	player := rand.New(rand.NewPCG(opts.Seed, 3))

	var queue []press
	hooks := rhythm.Hooks{
		OnQuestionSpawn: func(ev rhythm.Event) {
			if player.Float64() >= opts.Accuracy {
				return
			}
			pitches, err := chord.Pitches(ev.Chord, 4)
			if err != nil {
				logger.Warn("simulated player cannot voice chord", "chord", ev.Chord, "error", err)
				return
			}
			offset := player.NormFloat64() * opts.Jitter.Seconds()
			queue = append(queue, press{at: ev.TargetTime + offset, pitches: pitches})
		},
	}

	clock := rhythm.NewManualClock()
	mgr := rhythm.NewManager(st.EngineConfig(stage.Windows{}, rng), st.Generator(rng), clock, hooks, logger)
	mgr.Start()

	end := float64(max(opts.Loops, 1)) * st.Timing().LoopLength()
	var held []int
	for !mgr.Done() && clock.Now() < end {
		clock.Advance(opts.Step)
		for _, p := range held {
			mgr.NoteOff(p)
		}
		held = held[:0]

		now := clock.Now()
		rest := queue[:0]
		for _, p := range queue {
			if p.at > now {
				rest = append(rest, p)
				continue
			}
			for _, pitch := range p.pitches {
				mgr.NoteOn(pitch)
			}
			held = append(held, p.pitches...)
		}
		queue = rest
		mgr.Tick()
	}
	mgr.Stop()
	return mgr.Snapshot(), nil
}
