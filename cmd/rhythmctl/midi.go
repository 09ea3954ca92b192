package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/jazzify/rhythmcore/internal/chord"
	"github.com/jazzify/rhythmcore/internal/midi"
	"github.com/jazzify/rhythmcore/internal/rhythm"
	"github.com/jazzify/rhythmcore/internal/stage"
)

var (
	listenDevice string
	listenEcho   bool
)

func init() {
	midiListenCmd.Flags().StringVarP(&listenDevice, "device", "d", "", "input port name, or part of it")
	midiListenCmd.Flags().BoolVar(&listenEcho, "echo", false, "print every note received")
	midiCmd.AddCommand(midiDevicesCmd, midiListenCmd)
	rootCmd.AddCommand(midiCmd)
}

var midiCmd = &cobra.Command{
	Use:   "midi",
	Short: "Use a MIDI keyboard (needs a build with -tags midi_native)",
}

var midiDevicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List MIDI input ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := midi.Devices()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var midiListenCmd = &cobra.Command{
	Use:   "listen STAGE_ID",
	Short: "Play a stage live from a MIDI keyboard on the software clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		st, err := loadStage(cmd.Context(), args[0], logger)
		if err != nil {
			return err
		}
		if err := st.Validate(); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		hooks := rhythm.Hooks{
			OnQuestionSpawn: func(ev rhythm.Event) {
				fmt.Fprintf(out, "%7.2fs  next   %-6s m%d b%d\n", ev.TargetTime, ev.Chord, ev.Measure, ev.Beat)
			},
			OnAttackSuccess: func(target, chordID string, r rhythm.Result) {
				fmt.Fprintf(out, "%7.2fs  %-6s %-6s %+4.0fms -> %s\n", r.Event.TargetTime, r.Timing, chordID, r.TimingDiff*1000, target)
			},
			OnAttackFail: func(_, chordID string, r rhythm.Result) {
				fmt.Fprintf(out, "%7.2fs  miss   %s\n", r.Event.TargetTime, chordID)
			},
			OnAllEnemiesDefeated: func() { fmt.Fprintln(out, "stage cleared") },
			OnGameOver:           func() { fmt.Fprintln(out, "game over") },
		}

		rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 2))
		mgr := rhythm.NewManager(st.EngineConfig(stage.Windows{}, rng), st.Generator(rng), rhythm.NewSoftwareClock(), hooks, logger)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		inputs := make(chan rhythm.Input, 256)
		listenErr := make(chan error, 1)
		var sink midi.Sink = midi.InputSink(inputs)
		if listenEcho {
			sink = echoSink{Sink: sink, out: out}
		}
		go func() {
			listenErr <- midi.Listen(ctx, listenDevice, sink, logger)
			cancel()
		}()

		err = mgr.Run(ctx, inputs)
		cancel()
		if lerr := <-listenErr; lerr != nil {
			return lerr
		}
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, rhythm.ErrStopped) {
			return err
		}
		return nil
	},
}

// echoSink prints each note by name before passing it on.
type echoSink struct {
	midi.Sink
	out io.Writer
}

func (e echoSink) NoteOn(pitch int) {
	fmt.Fprintf(e.out, "          on     %s\n", chord.Name(pitch))
	e.Sink.NoteOn(pitch)
}

func (e echoSink) NoteOff(pitch int) {
	fmt.Fprintf(e.out, "          off    %s\n", chord.Name(pitch))
	e.Sink.NoteOff(pitch)
}
