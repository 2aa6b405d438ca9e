package farm

import (
	"sync"
	"time"
)

// TickSource yields the current discrete tick. It must be monotonic.
type TickSource interface {
	CurrentTick() uint64
}

// ManualClock is a TickSource advanced explicitly by the caller. Tests use it
// to move time without sleeping.
type ManualClock struct {
	mu   sync.Mutex
	tick uint64
}

func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{tick: start}
}

func (c *ManualClock) CurrentTick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Advance moves the clock forward by n ticks and returns the new tick.
func (c *ManualClock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick += n
	return c.tick
}

// Set jumps to tick. Moving backwards is ignored to keep the source monotonic.
func (c *ManualClock) Set(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tick > c.tick {
		c.tick = tick
	}
}

// WallClock derives ticks from elapsed wall time since genesis, one tick per
// interval.
type WallClock struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

func NewWallClock(genesis time.Time, interval time.Duration) *WallClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &WallClock{genesis: genesis, interval: interval, now: time.Now}
}

// SetNowFunc overrides the time source. Passing nil restores time.Now.
func (c *WallClock) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.now = now
}

func (c *WallClock) CurrentTick() uint64 {
	elapsed := c.now().Sub(c.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / c.interval)
}
