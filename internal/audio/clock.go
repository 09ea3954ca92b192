// Package audio drives the backing track and derives the game clock from the
// frames the sound device has actually consumed.
package audio

import (
	"errors"
	"io"
	"sync"
)

// ErrUnavailable means no audio device could be opened. Callers fall back to
// a software clock and play without a backing track.
var ErrUnavailable = errors.New("audio unavailable")

const (
	SampleRate    = 44100
	channels      = 2
	bytesPerFrame = channels * 2 // signed 16-bit little endian
)

// DeviceClock turns frames pulled by the device into seconds. It implements
// rhythm.Clock. Frames still sitting in the device buffer have not been heard
// yet and are subtracted.
type DeviceClock struct {
	mu       sync.Mutex
	rate     float64
	pulled   int64
	buffered func() int

	base    float64
	offset  float64
	last    float64
	running bool
}

func NewDeviceClock(sampleRate int) *DeviceClock {
	return &DeviceClock{rate: float64(sampleRate)}
}

// heard returns the seconds of audio that have left the device buffer.
// Callers hold mu.
func (c *DeviceClock) heard() float64 {
	b := int64(0)
	if c.buffered != nil {
		b = int64(c.buffered())
	}
	frames := (c.pulled - b) / bytesPerFrame
	return max(float64(frames)/c.rate, 0)
}

func (c *DeviceClock) Start(originOffset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.heard()
	c.offset = originOffset
	c.last = -originOffset
	c.running = true
}

// Now never moves backwards, even if the device reports a larger buffer
// than on the previous call.
func (c *DeviceClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.last
	}
	c.last = max(c.last, c.heard()-c.base-c.offset)
	return c.last
}

func (c *DeviceClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.last = max(c.last, c.heard()-c.base-c.offset)
	c.running = false
}

func (c *DeviceClock) Degraded() bool { return false }

func (c *DeviceClock) add(n int) {
	c.mu.Lock()
	c.pulled += int64(n)
	c.mu.Unlock()
}

func (c *DeviceClock) setBuffered(f func() int) {
	c.mu.Lock()
	c.buffered = f
	c.mu.Unlock()
}

// countingReader credits every byte the device pulls to a clock.
type countingReader struct {
	r     io.Reader
	clock *DeviceClock
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.clock.add(n)
	}
	return n, err
}
