package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/jazzify/rhythmcore/internal/midi"
	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/stage"
)

var (
	exportLoops int
	exportSeed  uint64
	exportOut   string
)

func init() {
	f := exportCmd.Flags()
	f.IntVar(&exportLoops, "loops", 1, "loops to write")
	f.Uint64Var(&exportSeed, "seed", 1, "random seed for random-mode stages")
	f.StringVarP(&exportOut, "out", "o", "", "output file (default STAGE_ID.mid)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export STAGE_ID",
	Short: "Write a stage's chord pattern as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		st, err := loadStage(cmd.Context(), args[0], logger)
		if err != nil {
			return err
		}
		events, err := pattern(st, exportLoops, exportSeed, logger)
		if err != nil {
			return err
		}

		path := exportOut
		if path == "" {
			path = st.ID + ".mid"
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := midi.WriteProgression(f, st.Name, events, st.Timing()); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d chord(s) to %s\n", len(events), path)
		return nil
	},
}

// pattern generates the events of the first loops of st, as the scheduler
// would hand them out during play.
func pattern(st stage.Stage, loops int, seed uint64, logger *slog.Logger) ([]rhythm.Event, error) {
	if err := st.Validate(); err != nil {
		return nil, err
	}
	t := st.Timing()
	sched := rhythm.NewScheduler(st.Generator(rand.New(rand.NewPCG(seed, 2))), t, logger)
	sched.Refill(float64(max(loops, 1)-1) * t.LoopLength())

	due := sched.Update(math.Inf(1))
	out := make([]rhythm.Event, len(due))
	for i, ev := range due {
		out[i] = *ev
	}
	return out, nil
}
