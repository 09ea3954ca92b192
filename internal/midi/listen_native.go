//go:build midi_native

package midi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Listen opens the input port named device, matching exactly first and then
// by substring, and forwards its notes to sink until ctx is done.
func Listen(ctx context.Context, device string, sink Sink, logger *slog.Logger) error {
	drv, err := rtmididrv.New()
	if err != nil {
		return fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return fmt.Errorf("listing MIDI inputs: %w", err)
	}
	in := pick(ins, device)
	if in == nil {
		return fmt.Errorf("MIDI input %q not found", device)
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("opening %q: %w", in.String(), err)
	}
	defer in.Close()

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		if !Dispatch(sink, msg) {
			logger.Debug("midi: unhandled message", "msg", msg.String())
		}
	}, midi.HandleError(func(err error) {
		logger.Warn("midi: listener error", "device", in.String(), "error", err)
	}))
	if err != nil {
		return fmt.Errorf("listening to %q: %w", in.String(), err)
	}
	defer stop()

	logger.Info("midi: connected", "device", in.String())
	<-ctx.Done()
	return nil
}

func pick(ins []drivers.In, name string) drivers.In {
	for _, in := range ins {
		if in.String() == name {
			return in
		}
	}
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(name)) {
			return in
		}
	}
	return nil
}

// Devices lists the available input ports.
func Devices() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs: %w", err)
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names, nil
}
