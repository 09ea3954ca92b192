//go:build audio_native

package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// Device is the process-wide sound card. oto allows a single context per
// process, so every Device shares it.
type Device struct {
	ctx *oto.Context
}

// Open initialises the sound card on first use.
func Open() (*Device, error) {
	otoOnce.Do(func() {
		var ready chan struct{}
		otoCtx, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, otoErr)
	}
	return &Device{ctx: otoCtx}, nil
}

func (d *Device) Play(r io.Reader) (Stream, error) {
	if err := d.ctx.Resume(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p := d.ctx.NewPlayer(r)
	p.Play()
	return p, nil
}
