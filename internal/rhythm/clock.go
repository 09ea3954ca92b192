package rhythm

import (
	"sync"
	"time"
)

// Clock is the single time source of a session. Now returns the playback
// position in seconds; position 0 is the origin passed to Start, so a
// count-in plays at negative positions. After Stop, Now keeps returning the
// position at which the clock froze.
type Clock interface {
	Now() float64
	Start(originOffset float64)
	Stop()
	// Degraded reports that the clock is not tied to audio hardware.
	Degraded() bool
}

// SoftwareClock runs on Go's monotonic clock. It is the fallback when no
// audio device is available and is always reported as degraded: it cannot
// follow drift between the wall clock and the sound card.
type SoftwareClock struct {
	mu      sync.Mutex
	now     func() time.Time
	origin  time.Time
	frozen  float64
	running bool
}

func NewSoftwareClock() *SoftwareClock {
	return &SoftwareClock{now: time.Now}
}

func (c *SoftwareClock) Start(originOffset float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = c.now().Add(time.Duration(originOffset * float64(time.Second)))
	c.running = true
}

func (c *SoftwareClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.frozen
	}
	return c.now().Sub(c.origin).Seconds()
}

func (c *SoftwareClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.frozen = c.now().Sub(c.origin).Seconds()
	c.running = false
}

func (c *SoftwareClock) Degraded() bool { return true }

// ManualClock only moves when told to. Simulations and tests drive it.
type ManualClock struct {
	mu  sync.Mutex
	pos float64
}

func NewManualClock() *ManualClock { return &ManualClock{} }

func (c *ManualClock) Start(originOffset float64) {
	c.mu.Lock()
	c.pos = -originOffset
	c.mu.Unlock()
}

func (c *ManualClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

func (c *ManualClock) Stop() {}

func (c *ManualClock) Degraded() bool { return false }

// Set moves the position to t. Moving backwards is ignored.
func (c *ManualClock) Set(t float64) {
	c.mu.Lock()
	if t > c.pos {
		c.pos = t
	}
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.pos += d.Seconds()
	c.mu.Unlock()
}
