//go:build !audio_native

package audio

import "io"

// Device is unavailable in builds without the audio_native tag.
type Device struct{}

func Open() (*Device, error) { return nil, ErrUnavailable }

func (d *Device) Play(io.Reader) (Stream, error) { return nil, ErrUnavailable }
