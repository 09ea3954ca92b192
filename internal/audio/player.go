package audio

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Output is a sound device that pulls PCM from a reader.
type Output interface {
	Play(r io.Reader) (Stream, error)
}

// Stream is one reader being played.
type Stream interface {
	// BufferedSize is the number of bytes pulled but not yet heard.
	BufferedSize() int
	Close() error
}

// Options describe the song the backing track accompanies.
type Options struct {
	BPM             float64
	TimeSignature   int
	MeasureCount    int
	CountInMeasures int
}

func (o Options) countIn() float64 {
	if o.BPM <= 0 {
		return 0
	}
	ts := o.TimeSignature
	if ts <= 0 {
		ts = 4
	}
	return float64(o.CountInMeasures*ts) * 60 / o.BPM
}

// Player plays one backing track at a time and owns the clock derived from
// it. A Player serves a single session.
type Player struct {
	out    Output
	client *http.Client
	logger *slog.Logger
	clock  *DeviceClock

	mu     sync.Mutex
	stream Stream
}

func NewPlayer(out Output, logger *slog.Logger) *Player {
	return &Player{
		out:    out,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
		clock:  NewDeviceClock(SampleRate),
	}
}

// Clock follows the audio this player has handed to the device.
func (p *Player) Clock() *DeviceClock { return p.clock }

// LoadAndPlay fetches the track at url and starts it after the count-in
// silence. A track that cannot be loaded is logged and replaced by silence
// so the clock keeps running.
func (p *Player) LoadAndPlay(ctx context.Context, url string, opts Options) error {
	var pcm []byte
	if url != "" {
		track, err := Fetch(ctx, p.client, url)
		if err != nil {
			p.logger.Warn("backing track unavailable, playing silence", "url", url, "error", err)
		} else {
			pcm = track.PCM
			p.logger.Debug("backing track loaded", "url", url, "seconds", track.Seconds())
		}
	}
	return p.play(io.MultiReader(silenceFor(opts.countIn()), &loop{pcm: pcm}))
}

func (p *Player) play(r io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		p.stream.Close()
		p.stream = nil
	}
	s, err := p.out.Play(&countingReader{r: r, clock: p.clock})
	if err != nil {
		return err
	}
	p.stream = s
	p.clock.setBuffered(s.BufferedSize)
	return nil
}

// Stop halts playback. It is safe to call more than once.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock.Stop()
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	return err
}
