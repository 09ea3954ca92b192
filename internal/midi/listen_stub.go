//go:build !midi_native

package midi

import (
	"context"
	"log/slog"
)

// Listen is unavailable without the midi_native build tag.
func Listen(context.Context, string, Sink, *slog.Logger) error { return ErrNoDriver }

// Devices is unavailable without the midi_native build tag.
func Devices() ([]string, error) { return nil, ErrNoDriver }
