package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/hajimehoshi/go-mp3"
)

// Track is decoded PCM, 16-bit stereo at SampleRate.
type Track struct {
	PCM []byte
}

// Seconds is the length of the track.
func (t *Track) Seconds() float64 {
	return float64(len(t.PCM)/bytesPerFrame) / SampleRate
}

// Decode reads a whole mp3 stream into memory.
func Decode(r io.Reader) (*Track, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("decoding mp3: %w", err)
	}
	if d.SampleRate() != SampleRate {
		return nil, fmt.Errorf("decoding mp3: sample rate %d Hz, want %d Hz", d.SampleRate(), SampleRate)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("decoding mp3: %w", err)
	}
	pcm = pcm[:len(pcm)/bytesPerFrame*bytesPerFrame]
	return &Track{PCM: pcm}, nil
}

// Fetch downloads and decodes the mp3 at url.
func Fetch(ctx context.Context, client *http.Client, url string) (*Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	return Decode(resp.Body)
}

// silence yields n bytes of zeros, or zeros forever when n < 0.
type silence struct {
	n int64
}

func (s *silence) Read(p []byte) (int, error) {
	if s.n == 0 {
		return 0, io.EOF
	}
	if s.n > 0 && int64(len(p)) > s.n {
		p = p[:s.n]
	}
	clear(p)
	if s.n > 0 {
		s.n -= int64(len(p))
	}
	return len(p), nil
}

// silenceFor is frame-aligned silence lasting the given seconds.
func silenceFor(seconds float64) *silence {
	frames := int64(seconds * SampleRate)
	return &silence{n: max(frames, 0) * bytesPerFrame}
}

// loop replays pcm forever. An empty track loops silence.
type loop struct {
	pcm []byte
	pos int
}

func (l *loop) Read(p []byte) (int, error) {
	if len(l.pcm) == 0 {
		clear(p)
		return len(p), nil
	}
	n := 0
	for n < len(p) {
		c := copy(p[n:], l.pcm[l.pos:])
		n += c
		l.pos = (l.pos + c) % len(l.pcm)
	}
	return n, nil
}
